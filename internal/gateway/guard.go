package gateway

import (
	"context"
	"strings"

	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/internal/session"
	"github.com/fatali-fataliyev/ecbank_web/logging"
)

const (
	EntryPage   = "index.html"
	LandingPage = "dashboard.html"
	AdminPage   = "admin.html"
	LogoutPath  = "/logout"
)

// Header is what a guarded page shows about the current user.
type Header struct {
	Greeting       string
	LastConnection string
	LogoutURL      string
}

// Access is the outcome of CheckAuth. Redirect is empty when the page may
// be shown; User is nil whenever access is not granted.
type Access struct {
	User     *bank.User
	Redirect string
	Header   Header
}

func (a Access) Granted() bool {
	return a.User != nil
}

func IsEntryPage(path string) bool {
	return strings.Contains(path, EntryPage)
}

// CheckAuth re-derives the current user from sess and applies the
// authentication and, when adminOnly is set, the authorization gate.
func CheckAuth(ctx context.Context, sess *session.Session, path string, adminOnly bool) Access {
	traceID := contextutil.TraceIDFromContext(ctx)

	clientCode, hasCode, err := sess.ClientCode(ctx)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | %v", traceID, err)
	}
	user, hasUser, err := sess.User(ctx)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | %v", traceID, err)
	}

	if !hasCode || !hasUser || clientCode == "" {
		if IsEntryPage(path) {
			return Access{}
		}
		return Access{Redirect: EntryPage}
	}

	if adminOnly && !user.IsAdmin {
		logging.Logger.Infof("[TraceID=%s] | %s denied admin page %s", traceID, clientCode, path)
		return Access{Redirect: LandingPage}
	}

	header := Header{
		Greeting:  "Bienvenue " + user.Name,
		LogoutURL: LogoutPath,
	}
	if user.LastConnection != "" {
		header.LastConnection = "Dernière connexion le " + user.LastConnection
	}

	return Access{User: user, Header: header}
}
