package gateway

import (
	"context"
	"fmt"

	"github.com/fatali-fataliyev/ecbank_web/internal/auth"
	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/internal/session"
	"github.com/fatali-fataliyev/ecbank_web/logging"
)

type RemoteAPI interface {
	Login(ctx context.Context, clientCode string, pin string) (bank.LoginResult, error)
	GetUser(ctx context.Context, clientCode string) (bank.User, error)
	AddTransaction(ctx context.Context, clientCode string, t bank.Transaction) (float64, error)
	CreateUser(ctx context.Context, newUser bank.NewUser) (bank.User, error)
}

// Gateway performs the remote operations and mirrors the authenticated
// identity into the caller's session.
type Gateway struct {
	remote        RemoteAPI
	policy        auth.AdminPolicy
	cacheAllUsers bool
}

func NewGateway(remote RemoteAPI, policy auth.AdminPolicy, cacheAllUsers bool) *Gateway {
	return &Gateway{
		remote:        remote,
		policy:        policy,
		cacheAllUsers: cacheAllUsers,
	}
}

// Login authenticates against the remote API. Only a successful login
// writes to sess, and it replaces whatever sess held before.
func (g *Gateway) Login(ctx context.Context, sess *session.Session, clientCode string, pin string) (bank.User, error) {
	traceID := contextutil.TraceIDFromContext(ctx)

	result, err := g.remote.Login(ctx, clientCode, pin)
	if err != nil {
		logging.Logger.Infof("[TraceID=%s] | login refused for %s: %v", traceID, clientCode, err)
		return bank.User{}, err
	}

	user := result.User
	user.IsAdmin = g.policy.IsAdmin(user.ClientCode, user.Role, result.Token)

	if err := sess.Clear(ctx); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to reset session in Gateway.Login() | Error: %v", traceID, err)
		return bank.User{}, fmt.Errorf("failed to store session: %w", err)
	}
	if err := sess.SaveIdentity(ctx, user); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to store identity in Gateway.Login() | Error: %v", traceID, err)
		return bank.User{}, fmt.Errorf("failed to store session: %w", err)
	}
	if err := sess.SaveRoleToken(ctx, result.Token); err != nil {
		logging.Logger.Warnf("[TraceID=%s] | failed to store role token: %v", traceID, err)
	}

	if g.cacheAllUsers && len(result.Users) > 0 {
		users := make([]bank.User, 0, len(result.Users))
		for _, u := range result.Users {
			u.IsAdmin = g.policy.IsAdmin(u.ClientCode, u.Role, "")
			users = append(users, u)
		}
		if err := sess.SaveAllUsers(ctx, users); err != nil {
			logging.Logger.Warnf("[TraceID=%s] | failed to cache user list: %v", traceID, err)
		}
	}

	logging.Logger.Infof("[TraceID=%s] | %s logged in (admin=%v)", traceID, user.ClientCode, user.IsAdmin)
	return user, nil
}

// FetchUser refreshes the stored snapshot. Any failure yields nil; the
// reason is only logged.
func (g *Gateway) FetchUser(ctx context.Context, sess *session.Session, clientCode string) *bank.User {
	traceID := contextutil.TraceIDFromContext(ctx)

	user, err := g.remote.GetUser(ctx, clientCode)
	if err != nil {
		logging.Logger.Warnf("[TraceID=%s] | failed to fetch user %s: %v", traceID, clientCode, err)
		return nil
	}

	token, err := sess.RoleToken(ctx)
	if err != nil {
		logging.Logger.Warnf("[TraceID=%s] | %v", traceID, err)
	}
	user.IsAdmin = g.policy.IsAdmin(user.ClientCode, user.Role, token)

	if err := sess.SaveUser(ctx, user); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to store refreshed user in Gateway.FetchUser() | Error: %v", traceID, err)
	}
	return &user
}

// AppendTransaction returns the balance computed by the server. The session
// is left as is; callers refetch the user when they need the new history.
func (g *Gateway) AppendTransaction(ctx context.Context, clientCode string, t bank.Transaction) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	newSolde, err := g.remote.AddTransaction(ctx, clientCode, t)
	if err != nil {
		logging.Logger.Infof("[TraceID=%s] | transaction refused for %s: %v", contextutil.TraceIDFromContext(ctx), clientCode, err)
		return 0, err
	}
	return newSolde, nil
}

func (g *Gateway) CreateUser(ctx context.Context, newUser bank.NewUser) (bank.User, error) {
	if err := newUser.Validate(); err != nil {
		return bank.User{}, err
	}
	created, err := g.remote.CreateUser(ctx, newUser)
	if err != nil {
		logging.Logger.Infof("[TraceID=%s] | user creation refused for %s: %v", contextutil.TraceIDFromContext(ctx), newUser.ClientCode, err)
		return bank.User{}, err
	}
	created.IsAdmin = g.policy.IsAdmin(created.ClientCode, created.Role, "")
	return created, nil
}

// Logout clears the whole session record. Calling it twice is harmless.
func (g *Gateway) Logout(ctx context.Context, sess *session.Session) error {
	if err := sess.Clear(ctx); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to clear session in Gateway.Logout() | Error: %v", contextutil.TraceIDFromContext(ctx), err)
		return err
	}
	return nil
}
