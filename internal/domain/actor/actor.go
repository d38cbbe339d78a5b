// internal/domain/actor/actor.go
package actor

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidKey = errors.New("actor: invalid key")

// Kind distinguishes anonymous installations from signed-in users.
type Kind string

const (
	Anonymous     Kind = "anonymous"
	Authenticated Kind = "authenticated"
)

const anonymousPrefix = "anon_"

// Key identifies the owner of a Cart/Favorites document.
type Key struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// NewAnonymous generates a fresh anonymous key.
func NewAnonymous() Key {
	return Key{Kind: Anonymous, ID: anonymousPrefix + uuid.NewString()}
}

// User wraps the backend-issued user identifier.
func User(uid string) (Key, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" || strings.HasPrefix(uid, anonymousPrefix) {
		return Key{}, ErrInvalidKey
	}
	return Key{Kind: Authenticated, ID: uid}, nil
}

// ParseAnonymous restores a persisted anonymous key.
func ParseAnonymous(id string) (Key, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, anonymousPrefix) || len(id) == len(anonymousPrefix) {
		return Key{}, ErrInvalidKey
	}
	return Key{Kind: Anonymous, ID: id}, nil
}

// DocID is the document id under which the actor's cart and favorites are stored.
func (k Key) DocID() string { return k.ID }

func (k Key) IsAnonymous() bool { return k.Kind == Anonymous }

func (k Key) IsZero() bool { return k.ID == "" }

func (k Key) String() string { return string(k.Kind) + ":" + k.ID }
