package api

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/0xcafe-io/iz"
	appErrors "github.com/fatali-fataliyev/ecbank_web/customErrors"
	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/internal/gateway"
	"github.com/fatali-fataliyev/ecbank_web/internal/session"
	"github.com/fatali-fataliyev/ecbank_web/logging"
)

type Api struct {
	Gateway  *gateway.Gateway
	Sessions *session.Manager
	pages    *template.Template
}

func NewApi(gw *gateway.Gateway, sessions *session.Manager) (*Api, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	return &Api{
		Gateway:  gw,
		Sessions: sessions,
		pages:    pages,
	}, nil
}

// Routes registers every page and JSON endpoint behind the session
// middleware.
func (api *Api) Routes() http.Handler {
	server := http.NewServeMux()

	// PAGES.
	server.HandleFunc("GET /{$}", iz.Bind(api.RootHandler))                     // Redirect to entry page
	server.HandleFunc("GET /index.html", iz.Bind(api.EntryPageHandler))         // Login form
	server.HandleFunc("POST /login", iz.Bind(api.LoginFormHandler))             // Login form submit
	server.HandleFunc("GET /dashboard.html", iz.Bind(api.DashboardHandler))     // Account, history, transaction form
	server.HandleFunc("POST /transaction", iz.Bind(api.TransactionFormHandler)) // Transaction form submit
	server.HandleFunc("GET /admin.html", iz.Bind(api.AdminPageHandler))         // User list and creation form
	server.HandleFunc("POST /admin/users", iz.Bind(api.CreateUserFormHandler))  // Creation form submit
	server.HandleFunc("POST /logout", iz.Bind(api.LogoutHandler))               // Logout form submit

	// SESSION ENDPOINTS.
	server.HandleFunc("POST /api/session/login", iz.Bind(api.LoginHandler))                  // Login
	server.HandleFunc("GET /api/session", iz.Bind(api.CheckAuthHandler))                     // Guard
	server.HandleFunc("GET /api/session/refresh", iz.Bind(api.RefreshUserHandler))           // Refetch user
	server.HandleFunc("PUT /api/session/transaction", iz.Bind(api.AppendTransactionHandler)) // Append transaction
	server.HandleFunc("POST /api/session/users", iz.Bind(api.CreateUserHandler))             // Create user (admin)
	server.HandleFunc("POST /api/session/logout", iz.Bind(api.LogoutJSONHandler))            // Logout

	return api.Sessions.Middleware(server)
}

func sessionOf(r *http.Request) *session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

// login authenticates into a fresh record and only then moves the browser
// onto it. A failed login leaves the current record and cookie untouched.
func (api *Api) login(r *iz.Request, clientCode string, pin string) (bank.User, error) {
	fresh := api.Sessions.Fresh()

	user, err := api.Gateway.Login(r.Context(), fresh, clientCode, pin)
	if err != nil {
		return bank.User{}, err
	}

	if err := api.Sessions.Rotate(r.ResponseWriter, r.Request, sessionOf(r.Request), fresh); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to rotate session in Api.login() | Error: %v", contextutil.TraceIDFromContext(r.Context()), err)
		_ = fresh.Clear(r.Context())
		return bank.User{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInternal,
			Message: "Impossible d'ouvrir la session, veuillez réessayer.",
		}
	}
	return user, nil
}

// guardJSON is CheckAuth for JSON callers: a redirect becomes 401 (no
// session) or 403 (not admin) with the redirect target in the body.
func guardJSON(r *http.Request, adminOnly bool) (gateway.Access, iz.Responder) {
	access := gateway.CheckAuth(r.Context(), sessionOf(r), r.URL.Path, adminOnly)
	if access.Granted() {
		return access, nil
	}
	status := 401
	message := "Session absente, veuillez vous connecter."
	if access.Redirect == gateway.LandingPage {
		status = 403
		message = "Accès réservé aux administrateurs."
	}
	return access, iz.Respond().Status(status).JSON(SessionResponse{
		Success:  false,
		Message:  message,
		Redirect: access.Redirect,
	})
}

func (api *Api) LoginHandler(r *iz.Request) iz.Responder {
	var loginReq LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).JSON(SessionResponse{Success: false, Message: msg})
	}

	user, err := api.login(r, loginReq.ClientCode, loginReq.Pin)
	if err != nil {
		return iz.Respond().Status(httpStatusFromError(err)).JSON(failure(err))
	}

	return iz.Respond().Status(200).JSON(SessionResponse{
		Success: true,
		User:    UserToHttp(user),
	})
}

func (api *Api) CheckAuthHandler(r *iz.Request) iz.Responder {
	adminOnly := r.URL.Query().Get("adminOnly") == "true"

	access, denied := guardJSON(r.Request, adminOnly)
	if denied != nil {
		return denied
	}

	return iz.Respond().Status(200).JSON(SessionResponse{
		Success: true,
		User:    UserToHttp(*access.User),
		Header:  HeaderToHttp(access.Header),
	})
}

func (api *Api) RefreshUserHandler(r *iz.Request) iz.Responder {
	access, denied := guardJSON(r.Request, false)
	if denied != nil {
		return denied
	}

	user := api.Gateway.FetchUser(r.Context(), sessionOf(r.Request), access.User.ClientCode)
	if user == nil {
		return iz.Respond().Status(404).JSON(SessionResponse{Success: false, Message: bank.MsgFetchUserFailed})
	}

	return iz.Respond().Status(200).JSON(SessionResponse{
		Success: true,
		User:    UserToHttp(*user),
	})
}

func (api *Api) AppendTransactionHandler(r *iz.Request) iz.Responder {
	access, denied := guardJSON(r.Request, false)
	if denied != nil {
		return denied
	}

	var txReq TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&txReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).JSON(SessionResponse{Success: false, Message: msg})
	}

	transaction := bank.Transaction{
		Type:        txReq.Type,
		Description: txReq.Description,
		Amount:      txReq.Amount,
	}

	newSolde, err := api.Gateway.AppendTransaction(r.Context(), access.User.ClientCode, transaction)
	if err != nil {
		return iz.Respond().Status(httpStatusFromError(err)).JSON(failure(err))
	}

	return iz.Respond().Status(200).JSON(SessionResponse{
		Success:  true,
		NewSolde: &newSolde,
	})
}

func (api *Api) CreateUserHandler(r *iz.Request) iz.Responder {
	if _, denied := guardJSON(r.Request, true); denied != nil {
		return denied
	}

	var newUserReq CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&newUserReq); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).JSON(SessionResponse{Success: false, Message: msg})
	}

	newUser := bank.NewUser{
		ClientCode: newUserReq.ClientCode,
		Pin:        newUserReq.Pin,
		Name:       newUserReq.Name,
		Balance:    newUserReq.Balance,
	}

	created, err := api.Gateway.CreateUser(r.Context(), newUser)
	if err != nil {
		return iz.Respond().Status(httpStatusFromError(err)).JSON(failure(err))
	}

	return iz.Respond().Status(201).JSON(SessionResponse{
		Success: true,
		User:    UserToHttp(created),
	})
}

func (api *Api) LogoutJSONHandler(r *iz.Request) iz.Responder {
	if err := api.Gateway.Logout(r.Context(), sessionOf(r.Request)); err != nil {
		return iz.Respond().Status(httpStatusFromError(err)).JSON(failure(err))
	}
	return iz.Respond().Status(200).JSON(SessionResponse{
		Success:  true,
		Redirect: gateway.EntryPage,
	})
}
