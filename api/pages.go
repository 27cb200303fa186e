package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/0xcafe-io/iz"
	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/internal/gateway"
	"github.com/fatali-fataliyev/ecbank_web/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageData struct {
	Title   string
	Header  gateway.Header
	User    *bank.User
	Users   []bank.User
	Error   string
	Notice  string
	Form    map[string]string
	Granted bool
}

func parsePages() (*template.Template, error) {
	funcs := template.FuncMap{
		"amount": func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"debit":  func(v float64) bool { return v < 0 },
	}
	return template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

func redirect(page string) iz.Responder {
	return iz.Respond().Header("Location", "/"+page).Status(http.StatusSeeOther)
}

func (api *Api) render(r *iz.Request, status int, name string, data pageData) iz.Responder {
	var buf bytes.Buffer
	if err := api.pages.ExecuteTemplate(&buf, name, data); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to render %s | Error: %v", contextutil.TraceIDFromContext(r.Context()), name, err)
		return iz.Respond().Status(500).Text("page rendering failed")
	}
	return iz.Respond().Header("Content-Type", "text/html; charset=utf-8").Status(status).Text(buf.String())
}

func (api *Api) RootHandler(r *iz.Request) iz.Responder {
	return redirect(gateway.EntryPage)
}

// EntryPageHandler is the only page that does not run the guard.
func (api *Api) EntryPageHandler(r *iz.Request) iz.Responder {
	return api.render(r, 200, "index.html", pageData{Title: "Connexion"})
}

func (api *Api) LoginFormHandler(r *iz.Request) iz.Responder {
	if err := r.ParseForm(); err != nil {
		return api.render(r, 400, "index.html", pageData{Title: "Connexion", Error: "Formulaire invalide."})
	}

	clientCode := r.PostForm.Get("clientCode")
	pin := r.PostForm.Get("pin")

	if _, err := api.login(r, clientCode, pin); err != nil {
		return api.render(r, httpStatusFromError(err), "index.html", pageData{
			Title: "Connexion",
			Error: failure(err).Message,
			Form:  map[string]string{"clientCode": clientCode},
		})
	}
	return redirect(gateway.LandingPage)
}

func (api *Api) DashboardHandler(r *iz.Request) iz.Responder {
	access := gateway.CheckAuth(r.Context(), sessionOf(r.Request), r.URL.Path, false)
	if !access.Granted() {
		return redirect(access.Redirect)
	}
	return api.render(r, 200, "dashboard.html", pageData{
		Title:   "Tableau de bord",
		Header:  access.Header,
		User:    access.User,
		Granted: true,
	})
}

// TransactionFormHandler appends the transaction, then refetches the user
// so the dashboard shows the server's balance and history.
func (api *Api) TransactionFormHandler(r *iz.Request) iz.Responder {
	sess := sessionOf(r.Request)
	access := gateway.CheckAuth(r.Context(), sess, r.URL.Path, false)
	if !access.Granted() {
		return redirect(access.Redirect)
	}

	dashboard := pageData{Title: "Tableau de bord", Header: access.Header, User: access.User, Granted: true}

	if err := r.ParseForm(); err != nil {
		dashboard.Error = "Formulaire invalide."
		return api.render(r, 400, "dashboard.html", dashboard)
	}

	transaction, err := TransactionFromForm(r.PostForm)
	if err != nil {
		dashboard.Error = failure(err).Message
		return api.render(r, httpStatusFromError(err), "dashboard.html", dashboard)
	}

	if _, err := api.Gateway.AppendTransaction(r.Context(), access.User.ClientCode, transaction); err != nil {
		dashboard.Error = failure(err).Message
		return api.render(r, httpStatusFromError(err), "dashboard.html", dashboard)
	}

	api.Gateway.FetchUser(r.Context(), sess, access.User.ClientCode)
	return redirect(gateway.LandingPage)
}

func (api *Api) adminPage(r *iz.Request, access gateway.Access) pageData {
	users, _, err := sessionOf(r.Request).AllUsers(r.Context())
	if err != nil {
		logging.Logger.Warnf("[TraceID=%s] | %v", contextutil.TraceIDFromContext(r.Context()), err)
	}
	return pageData{
		Title:   "Administration",
		Header:  access.Header,
		User:    access.User,
		Users:   users,
		Granted: true,
	}
}

func (api *Api) AdminPageHandler(r *iz.Request) iz.Responder {
	access := gateway.CheckAuth(r.Context(), sessionOf(r.Request), r.URL.Path, true)
	if !access.Granted() {
		return redirect(access.Redirect)
	}
	return api.render(r, 200, "admin.html", api.adminPage(r, access))
}

func (api *Api) CreateUserFormHandler(r *iz.Request) iz.Responder {
	access := gateway.CheckAuth(r.Context(), sessionOf(r.Request), r.URL.Path, true)
	if !access.Granted() {
		return redirect(access.Redirect)
	}

	page := api.adminPage(r, access)

	if err := r.ParseForm(); err != nil {
		page.Error = "Formulaire invalide."
		return api.render(r, 400, "admin.html", page)
	}

	newUser, err := NewUserFromForm(r.PostForm)
	if err != nil {
		page.Error = failure(err).Message
		return api.render(r, httpStatusFromError(err), "admin.html", page)
	}

	created, err := api.Gateway.CreateUser(r.Context(), newUser)
	if err != nil {
		page.Error = failure(err).Message
		page.Form = map[string]string{"clientCode": newUser.ClientCode, "name": newUser.Name}
		return api.render(r, httpStatusFromError(err), "admin.html", page)
	}

	page.Notice = fmt.Sprintf("Utilisateur %s (%s) créé.", created.Name, created.ClientCode)
	return api.render(r, 201, "admin.html", page)
}

func (api *Api) LogoutHandler(r *iz.Request) iz.Responder {
	if err := api.Gateway.Logout(r.Context(), sessionOf(r.Request)); err != nil {
		return api.render(r, httpStatusFromError(err), "index.html", pageData{Title: "Connexion", Error: failure(err).Message})
	}
	return redirect(gateway.EntryPage)
}
