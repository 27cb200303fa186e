package session

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/logging"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	cookieName = "ecbk_session"
	idValueKey = "sid"
)

type contextKey string

const sessionKey contextKey = "session"

// Manager binds a browser to its session record through a signed and
// encrypted cookie that only carries the record id. The cookie has no
// Max-Age, so it ends with the browser session. Every tab of the browser
// shares the record.
type Manager struct {
	cookies *sessions.CookieStore
	storage Storage
}

func NewManager(secret string, secure bool, storage Storage) (*Manager, error) {
	hashKey, blockKey, err := deriveKeys(secret)
	if err != nil {
		return nil, err
	}

	cookies := sessions.NewCookieStore(hashKey, blockKey)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   0,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}

	return &Manager{cookies: cookies, storage: storage}, nil
}

// deriveKeys expands secret into a 32-byte signing key and a 32-byte
// AES-256 key.
func deriveKeys(secret string) ([]byte, []byte, error) {
	if secret == "" {
		return nil, nil, fmt.Errorf("empty session secret")
	}
	keys := hkdf.New(sha256.New, []byte(secret), nil, []byte("ecbank_web session cookie"))

	hashKey := make([]byte, 32)
	blockKey := make([]byte, 32)
	if _, err := io.ReadFull(keys, hashKey); err != nil {
		return nil, nil, fmt.Errorf("failed to derive cookie keys: %w", err)
	}
	if _, err := io.ReadFull(keys, blockKey); err != nil {
		return nil, nil, fmt.Errorf("failed to derive cookie keys: %w", err)
	}
	return hashKey, blockKey, nil
}

func (m *Manager) Storage() Storage {
	return m.storage
}

// Load returns the session of the requesting browser, issuing a new record
// id (and cookie) when there is none or the cookie cannot be decoded.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	traceID := contextutil.TraceIDFromContext(r.Context())

	cookie, err := m.cookies.Get(r, cookieName)
	if cookie == nil {
		return nil, fmt.Errorf("failed to get session cookie: %w", err)
	}
	if err != nil {
		logging.Logger.Warnf("[TraceID=%s] | discarding unreadable session cookie: %v", traceID, err)
	}

	if id, ok := cookie.Values[idValueKey].(string); ok && id != "" {
		return New(id, m.storage), nil
	}

	id := uuid.New().String()
	cookie.Values[idValueKey] = id
	if err := cookie.Save(r, w); err != nil {
		return nil, fmt.Errorf("failed to save session cookie: %w", err)
	}
	logging.Logger.Debugf("[TraceID=%s] | new session %s", traceID, id)
	return New(id, m.storage), nil
}

// Fresh returns an empty session under a new record id. Nothing is stored
// until the caller writes into it.
func (m *Manager) Fresh() *Session {
	return New(uuid.New().String(), m.storage)
}

// Rotate points the browser's cookie at fresh and drops the record of old,
// so an id handed out before login never carries the logged-in identity.
func (m *Manager) Rotate(w http.ResponseWriter, r *http.Request, old *Session, fresh *Session) error {
	traceID := contextutil.TraceIDFromContext(r.Context())

	cookie, err := m.cookies.Get(r, cookieName)
	if cookie == nil {
		return fmt.Errorf("failed to get session cookie: %w", err)
	}

	// Load may already have issued a cookie on this response.
	dropSetCookie(w.Header(), cookieName)

	cookie.Values[idValueKey] = fresh.ID
	if err := cookie.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session cookie: %w", err)
	}

	if old != nil && old.ID != fresh.ID {
		if err := old.Clear(r.Context()); err != nil {
			logging.Logger.Warnf("[TraceID=%s] | failed to drop previous session %s: %v", traceID, old.ID, err)
		}
	}
	logging.Logger.Debugf("[TraceID=%s] | session rotated to %s", traceID, fresh.ID)
	return nil
}

func dropSetCookie(header http.Header, name string) {
	var kept []string
	for _, value := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(value, name+"=") {
			kept = append(kept, value)
		}
	}
	header.Del("Set-Cookie")
	for _, value := range kept {
		header.Add("Set-Cookie", value)
	}
}

// Middleware loads the session and puts it in the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.Load(w, r)
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to load session: %v", contextutil.TraceIDFromContext(r.Context()), err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*Session)
	return sess, ok && sess != nil
}
