// internal/platform/di/shared/secret_provider_sm.go
package shared

import (
	"context"
	"errors"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

var errSecretProviderNotConfigured = errors.New("shared: secret provider not configured")

// credentialsSecretSM reads a service-account JSON stored in Secret Manager
// (FIRESTORE_CREDENTIALS_SECRET). The secret may be a bare id or a full resource name.
type credentialsSecretSM struct {
	sm        *secretmanager.Client
	projectID string
	version   string
}

func (p *credentialsSecretSM) Load(ctx context.Context, secret string) ([]byte, error) {
	if p == nil || p.sm == nil {
		return nil, errSecretProviderNotConfigured
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("credentialsSecretSM: secret is empty")
	}

	name := secret
	if !strings.HasPrefix(secret, "projects/") {
		prj := strings.TrimSpace(p.projectID)
		if prj == "" {
			return nil, errors.New("credentialsSecretSM: projectID is empty")
		}
		ver := strings.TrimSpace(p.version)
		if ver == "" {
			ver = "latest"
		}
		name = "projects/" + prj + "/secrets/" + secret + "/versions/" + ver
	}

	resp, err := p.sm.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, errors.New("credentialsSecretSM: AccessSecretVersion failed (" + name + "): " + err.Error())
	}
	if resp == nil || resp.Payload == nil || len(resp.Payload.Data) == 0 {
		return nil, errors.New("credentialsSecretSM: empty payload (" + name + ")")
	}
	return resp.Payload.Data, nil
}
