// internal/adapters/out/firestore/document_store_fs.go
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storefront/internal/domain/document"
)

// documentStoreFS is the Firestore implementation of document.Store for one collection.
//   - docId = actor key
//   - Put = full Set (overwrite); the store timestamp is WriteResult.UpdateTime
//   - Subscribe = DocumentRef.Snapshots, delivered in order on one goroutine
//
// Domain types never carry firestore tags; encode/decode go through DTOs.
type documentStoreFS[D document.Doc[D]] struct {
	Client     *firestore.Client
	collection string
	name       string
	encode     func(D) any
	decode     func(id string, snap *firestore.DocumentSnapshot) (D, error)
}

func (s *documentStoreFS[D]) col() *firestore.CollectionRef {
	return s.Client.Collection(s.collection)
}

func (s *documentStoreFS[D]) Mode() document.Mode { return document.ModeLive }

func (s *documentStoreFS[D]) Get(ctx context.Context, key string) (document.Snapshot[D], error) {
	id, err := s.docID(key)
	if err != nil {
		return document.Snapshot[D]{}, err
	}

	snap, err := s.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return document.Snapshot[D]{Key: id}, nil
		}
		return document.Snapshot[D]{}, storeError(s.name+" get", err)
	}
	return s.toSnapshot(id, snap)
}

func (s *documentStoreFS[D]) Put(ctx context.Context, key string, doc D) (time.Time, error) {
	id, err := s.docID(key)
	if err != nil {
		return time.Time{}, err
	}

	// Overwrite full doc (simple & predictable).
	wr, err := s.col().Doc(id).Set(ctx, s.encode(doc))
	if err != nil {
		return time.Time{}, storeError(s.name+" put", err)
	}
	return wr.UpdateTime, nil
}

func (s *documentStoreFS[D]) Subscribe(key string, onSnapshot func(document.Snapshot[D])) (func(), error) {
	id, err := s.docID(key)
	if err != nil {
		return nil, err
	}
	if onSnapshot == nil {
		return nil, errors.New(s.name + "_store_fs: onSnapshot is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	it := s.col().Doc(id).Snapshots(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				log.Printf("[docstore] subscription ended doc=%s key=%q code=%s err=%v", s.name, id, status.Code(err), err)
				return
			}
			if snap == nil || !snap.Exists() {
				onSnapshot(document.Snapshot[D]{Key: id})
				continue
			}
			out, err := s.toSnapshot(id, snap)
			if err != nil {
				log.Printf("[docstore] undecodable snapshot doc=%s key=%q err=%v", s.name, id, err)
				continue
			}
			onSnapshot(out)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *documentStoreFS[D]) toSnapshot(id string, snap *firestore.DocumentSnapshot) (document.Snapshot[D], error) {
	d, err := s.decode(id, snap)
	if err != nil {
		return document.Snapshot[D]{}, fmt.Errorf("%s_store_fs: decode %s: %w", s.name, id, err)
	}
	return document.Snapshot[D]{
		Key:       id,
		Doc:       d.Stamp(snap.UpdateTime),
		Exists:    true,
		UpdatedAt: snap.UpdateTime,
	}, nil
}

func (s *documentStoreFS[D]) docID(key string) (string, error) {
	if s == nil || s.Client == nil {
		return "", errors.New("document_store_fs: firestore client is nil")
	}
	id := strings.TrimSpace(key)
	if id == "" {
		return "", errors.New(s.name + "_store_fs: key is empty")
	}
	return id, nil
}

// storeError classifies a Firestore failure. Every transport failure surfaces as
// document.ErrUnavailable; the gRPC code is kept in the message.
func storeError(op string, err error) error {
	return document.Unavailable(fmt.Sprintf("firestore %s (code=%s)", op, status.Code(err)), err)
}
