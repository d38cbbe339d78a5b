// internal/adapters/in/http/mall/handler/session_handler.go
package mallHandler

import (
	"log"
	"net/http"

	"storefront/internal/domain/actor"
	"storefront/internal/domain/document"
)

// SessionHandler exposes the device's identity.
//   - GET  /mall/me/session   actor kind/key and store mode (a valid bearer token signs in first)
//   - POST /mall/me/signout   switch to a fresh anonymous key (the signed-in user's token is required)
type SessionHandler struct {
	sessions SessionProvider
}

func NewSessionHandler(sessions SessionProvider) http.Handler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := cleanPath(r.URL.Path)

	switch path {
	case "/mall/me/session":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleGet(w, r)
	case "/mall/me/signout":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleSignOut(w, r)
	default:
		notFound(w)
	}
}

func (h *SessionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	s := bindSession(w, r, h.sessions, "mall_session_handler", false)
	if s == nil {
		return
	}

	k, err := s.Actor(r.Context())
	if err != nil {
		writeUsecaseErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResp(k, s.Mode()))
}

func (h *SessionHandler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s := bindSession(w, r, h.sessions, "mall_session_handler", true)
	if s == nil {
		return
	}

	k, err := s.SignOut(r.Context())
	if err != nil {
		log.Printf("[mall_session_handler] signout failed device=%q err=%v", s.DeviceID(), err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_session_handler] signout ok device=%q actor=%s", s.DeviceID(), maskActor(k))
	writeJSON(w, http.StatusOK, newSessionResp(k, s.Mode()))
}

type sessionResp struct {
	ActorKind string        `json:"actorKind"`
	ActorKey  string        `json:"actorKey"`
	Mode      document.Mode `json:"mode"`
}

func newSessionResp(k actor.Key, mode document.Mode) sessionResp {
	return sessionResp{ActorKind: string(k.Kind), ActorKey: k.ID, Mode: mode}
}
