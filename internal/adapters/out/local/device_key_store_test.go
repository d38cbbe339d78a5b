// internal/adapters/out/local/device_key_store_test.go
package local

import (
	"context"
	"path/filepath"
	"testing"
)

func TestDeviceKeyStore_InMemory(t *testing.T) {
	s, err := OpenDeviceKeyStore(":memory:")
	if err != nil {
		t.Fatalf("OpenDeviceKeyStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, "device-1"); err != nil || ok {
		t.Fatalf("Load(empty) = %t %v", ok, err)
	}

	if err := s.Save(ctx, "device-1", "anon_a"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "device-1", "anon_b"); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}

	k, ok, err := s.Load(ctx, " device-1 ")
	if err != nil || !ok || k != "anon_b" {
		t.Fatalf("Load = %q %t %v", k, ok, err)
	}
}

func TestDeviceKeyStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	ctx := context.Background()

	s, err := OpenDeviceKeyStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(ctx, "device-1", "anon_a"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = s.Close()

	s, err = OpenDeviceKeyStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	k, ok, err := s.Load(ctx, "device-1")
	if err != nil || !ok || k != "anon_a" {
		t.Fatalf("Load after reopen = %q %t %v", k, ok, err)
	}
}

func TestOpenDeviceKeyStore_EmptyDSN(t *testing.T) {
	if _, err := OpenDeviceKeyStore(" "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
