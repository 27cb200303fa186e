package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/logging"
)

// Session is the record of one browser session. It is handed to every
// controller explicitly; nothing reads storage behind its back.
type Session struct {
	ID      string
	storage Storage
}

func New(id string, storage Storage) *Session {
	return &Session{ID: id, storage: storage}
}

func (s *Session) ClientCode(ctx context.Context) (string, bool, error) {
	value, ok, err := s.storage.Get(ctx, s.ID, KeyClientCode)
	if err != nil {
		return "", false, fmt.Errorf("failed to read client code: %w", err)
	}
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// User returns the stored user snapshot. A snapshot that cannot be decoded
// counts as absent.
func (s *Session) User(ctx context.Context) (*bank.User, bool, error) {
	value, ok, err := s.storage.Get(ctx, s.ID, KeyUserData)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read user data: %w", err)
	}
	if !ok || value == "" {
		return nil, false, nil
	}

	var user bank.User
	if err := json.Unmarshal([]byte(value), &user); err != nil {
		logging.Logger.Warnf("[TraceID=%s] | unreadable user data in session %s: %v", contextutil.TraceIDFromContext(ctx), s.ID, err)
		return nil, false, nil
	}
	return &user, true, nil
}

// SaveIdentity writes both clientCode and userData, as a successful login does.
func (s *Session) SaveIdentity(ctx context.Context, user bank.User) error {
	if err := s.storage.Set(ctx, s.ID, KeyClientCode, user.ClientCode); err != nil {
		return fmt.Errorf("failed to save client code: %w", err)
	}
	return s.SaveUser(ctx, user)
}

// SaveUser overwrites userData only. The PIN never reaches storage.
func (s *Session) SaveUser(ctx context.Context, user bank.User) error {
	user.Pin = ""
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user data: %w", err)
	}
	if err := s.storage.Set(ctx, s.ID, KeyUserData, string(payload)); err != nil {
		return fmt.Errorf("failed to save user data: %w", err)
	}
	return nil
}

func (s *Session) SaveAllUsers(ctx context.Context, users []bank.User) error {
	stripped := make([]bank.User, 0, len(users))
	for _, user := range users {
		user.Pin = ""
		stripped = append(stripped, user)
	}
	payload, err := json.Marshal(stripped)
	if err != nil {
		return fmt.Errorf("failed to encode user list: %w", err)
	}
	if err := s.storage.Set(ctx, s.ID, KeyAllUsers, string(payload)); err != nil {
		return fmt.Errorf("failed to save user list: %w", err)
	}
	return nil
}

func (s *Session) AllUsers(ctx context.Context) ([]bank.User, bool, error) {
	value, ok, err := s.storage.Get(ctx, s.ID, KeyAllUsers)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read user list: %w", err)
	}
	if !ok || value == "" {
		return nil, false, nil
	}

	var users []bank.User
	if err := json.Unmarshal([]byte(value), &users); err != nil {
		logging.Logger.Warnf("[TraceID=%s] | unreadable user list in session %s: %v", contextutil.TraceIDFromContext(ctx), s.ID, err)
		return nil, false, nil
	}
	return users, true, nil
}

// SaveRoleToken keeps the server-issued token so that later refetches
// resolve the same role as the login did.
func (s *Session) SaveRoleToken(ctx context.Context, token string) error {
	if token == "" {
		return s.storage.Delete(ctx, s.ID, KeyRoleToken)
	}
	if err := s.storage.Set(ctx, s.ID, KeyRoleToken, token); err != nil {
		return fmt.Errorf("failed to save role token: %w", err)
	}
	return nil
}

func (s *Session) RoleToken(ctx context.Context) (string, error) {
	value, _, err := s.storage.Get(ctx, s.ID, KeyRoleToken)
	if err != nil {
		return "", fmt.Errorf("failed to read role token: %w", err)
	}
	return value, nil
}

// Clear removes the whole record. Clearing an empty record is not an error.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.storage.Clear(ctx, s.ID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
