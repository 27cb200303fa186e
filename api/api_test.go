package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/fatali-fataliyev/ecbank_web/internal/auth"
	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/gateway"
	"github.com/fatali-fataliyev/ecbank_web/internal/session"
	"github.com/fatali-fataliyev/ecbank_web/internal/storage"
	"github.com/stretchr/testify/require"
)

// fakeBank answers like the remote banking API, keeping its users in memory.
type fakeBank struct {
	mu    sync.Mutex
	users map[string]*bank.User
	pins  map[string]string
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		users: map[string]*bank.User{
			"0000000000": {ClientCode: "0000000000", Name: "Admin", Balance: 0},
			"1234567890": {ClientCode: "1234567890", Name: "Awa Diop", LastConnection: "17/10/2026 18:02", Balance: 1000},
		},
		pins: map[string]string{
			"0000000000": "000000",
			"1234567890": "123456",
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBank) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClientCode string `json:"clientCode"`
			Pin        string `json:"pin"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		defer b.mu.Unlock()
		user, ok := b.users[req.ClientCode]
		if !ok || b.pins[req.ClientCode] != req.Pin {
			writeJSON(w, 401, map[string]any{"success": false})
			return
		}
		all := make([]bank.User, 0, len(b.users))
		for _, u := range b.users {
			all = append(all, *u)
		}
		writeJSON(w, 200, map[string]any{"success": true, "user": user, "users": all})
	})

	mux.HandleFunc("GET /api/users/{code}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		user, ok := b.users[r.PathValue("code")]
		if !ok {
			writeJSON(w, 404, map[string]any{"success": false, "message": "Utilisateur introuvable."})
			return
		}
		writeJSON(w, 200, map[string]any{"success": true, "user": user})
	})

	mux.HandleFunc("PUT /api/users/{code}/history", func(w http.ResponseWriter, r *http.Request) {
		var tx bank.Transaction
		_ = json.NewDecoder(r.Body).Decode(&tx)

		b.mu.Lock()
		defer b.mu.Unlock()
		user, ok := b.users[r.PathValue("code")]
		if !ok {
			writeJSON(w, 404, map[string]any{"success": false})
			return
		}
		user.Balance += tx.Amount
		user.History = append(user.History, bank.HistoryEntry{Type: tx.Type, Description: tx.Description, Amount: tx.Amount, Date: "18/10/2026"})
		writeJSON(w, 200, map[string]any{"success": true, "newSolde": user.Balance})
	})

	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, r *http.Request) {
		var newUser bank.NewUser
		_ = json.NewDecoder(r.Body).Decode(&newUser)

		b.mu.Lock()
		defer b.mu.Unlock()
		if _, exists := b.users[newUser.ClientCode]; exists {
			writeJSON(w, 409, map[string]any{"success": false, "message": "Code client déjà utilisé."})
			return
		}
		user := &bank.User{ClientCode: newUser.ClientCode, Name: newUser.Name, Balance: newUser.Balance}
		b.users[newUser.ClientCode] = user
		b.pins[newUser.ClientCode] = newUser.Pin
		writeJSON(w, 201, map[string]any{"success": true, "user": user})
	})

	return mux
}

// newTestApp starts the fake bank and the gateway in front of it, and
// returns a browser-like client that keeps cookies and does not follow
// redirects.
func newTestApp(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()

	remote := httptest.NewServer(newFakeBank().handler())
	t.Cleanup(remote.Close)

	return newTestAppWithRemote(t, remote.URL)
}

func newTestAppWithRemote(t *testing.T, remoteURL string) (*httptest.Server, *http.Client) {
	t.Helper()

	gw := gateway.NewGateway(bank.NewClient(remoteURL, &http.Client{}), auth.NewAdminPolicy("0000000000"), true)
	sessions, err := session.NewManager("test-secret", false, storage.NewInMemoryStorage())
	require.NoError(t, err)

	api, err := NewApi(gw, sessions)
	require.NoError(t, err)

	app := httptest.NewServer(api.Routes())
	t.Cleanup(app.Close)

	return app, newBrowser(t)
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func sessionCookie(t *testing.T, app *httptest.Server, client *http.Client) *http.Cookie {
	t.Helper()
	u, err := url.Parse(app.URL)
	require.NoError(t, err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "ecbk_session" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func get(t *testing.T, client *http.Client, target string) (*http.Response, string) {
	t.Helper()
	res, err := client.Get(target)
	require.NoError(t, err)
	return res, readBody(t, res)
}

func postForm(t *testing.T, client *http.Client, target string, form url.Values) (*http.Response, string) {
	t.Helper()
	res, err := client.PostForm(target, form)
	require.NoError(t, err)
	return res, readBody(t, res)
}

func sendJSON(t *testing.T, client *http.Client, method string, target string, body any) (*http.Response, SessionResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(payload))
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded SessionResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&decoded))
	return res, decoded
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func login(t *testing.T, app *httptest.Server, client *http.Client, clientCode string, pin string) {
	t.Helper()
	res, _ := postForm(t, client, app.URL+"/login", url.Values{"clientCode": {clientCode}, "pin": {pin}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/dashboard.html", res.Header.Get("Location"))
}

func TestGuardedPagesWithoutSession(t *testing.T) {
	app, client := newTestApp(t)

	tests := []struct {
		name     string
		path     string
		status   int
		location string
	}{
		{name: "Root redirects to entry page", path: "/", status: http.StatusSeeOther, location: "/index.html"},
		{name: "Entry page is served", path: "/index.html", status: 200},
		{name: "Dashboard redirects", path: "/dashboard.html", status: http.StatusSeeOther, location: "/index.html"},
		{name: "Admin page redirects", path: "/admin.html", status: http.StatusSeeOther, location: "/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := get(t, client, app.URL+tt.path)
			require.Equal(t, tt.status, res.StatusCode)
			require.Equal(t, tt.location, res.Header.Get("Location"))
		})
	}
}

func TestLoginAndDashboard(t *testing.T) {
	app, client := newTestApp(t)
	login(t, app, client, "1234567890", "123456")

	res, body := get(t, client, app.URL+"/dashboard.html")
	require.Equal(t, 200, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "text/html")
	require.Contains(t, body, "Bienvenue Awa Diop")
	require.Contains(t, body, "Dernière connexion le 17/10/2026 18:02")
	require.Contains(t, body, "1000.00 XOF")
	require.Contains(t, body, `<form id="logout" method="post" action="/logout">`)
	require.NotContains(t, body, "/admin.html")

	// a regular user is sent back to the dashboard
	res, _ = get(t, client, app.URL+"/admin.html")
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/dashboard.html", res.Header.Get("Location"))
}

func TestLoginFormRejected(t *testing.T) {
	app, client := newTestApp(t)

	res, body := postForm(t, client, app.URL+"/login", url.Values{"clientCode": {"1234567890"}, "pin": {"999999"}})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Contains(t, body, bank.MsgLoginRejected)
	require.Contains(t, body, `value="1234567890"`)

	res, _ = get(t, client, app.URL+"/dashboard.html")
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/index.html", res.Header.Get("Location"))
}

func TestLoginWithBankUnreachable(t *testing.T) {
	remote := httptest.NewServer(http.NotFoundHandler())
	remoteURL := remote.URL
	remote.Close()

	app, client := newTestAppWithRemote(t, remoteURL)

	res, body := postForm(t, client, app.URL+"/login", url.Values{"clientCode": {"1234567890"}, "pin": {"123456"}})
	require.Equal(t, http.StatusBadGateway, res.StatusCode)
	require.Contains(t, body, "Impossible de contacter le serveur")
}

func TestTransactionForm(t *testing.T) {
	app, client := newTestApp(t)
	login(t, app, client, "1234567890", "123456")

	res, _ := postForm(t, client, app.URL+"/transaction", url.Values{
		"type":        {"retrait"},
		"description": {"Marché Sandaga"},
		"amount":      {"250,5"},
		"direction":   {"debit"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/dashboard.html", res.Header.Get("Location"))

	res, body := get(t, client, app.URL+"/dashboard.html")
	require.Equal(t, 200, res.StatusCode)
	require.Contains(t, body, "749.50")
	require.Contains(t, body, "Marché Sandaga")
	require.Contains(t, body, "-250.50")

	res, body = postForm(t, client, app.URL+"/transaction", url.Values{"type": {"retrait"}, "amount": {"abc"}})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Contains(t, body, "Montant invalide")
}

func TestAdminPages(t *testing.T) {
	app, client := newTestApp(t)
	login(t, app, client, "0000000000", "000000")

	res, body := get(t, client, app.URL+"/admin.html")
	require.Equal(t, 200, res.StatusCode)
	require.Contains(t, body, "1234567890")
	require.Contains(t, body, "Awa Diop")

	res, body = postForm(t, client, app.URL+"/admin/users", url.Values{
		"clientCode": {"5555555555"},
		"pin":        {"654321"},
		"name":       {"Moussa Fall"},
		"balance":    {"100"},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Contains(t, body, "Moussa Fall")

	res, _ = postForm(t, client, app.URL+"/admin/users", url.Values{
		"clientCode": {"5555555555"},
		"pin":        {"654321"},
		"name":       {"Moussa Fall"},
	})
	require.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = postForm(t, client, app.URL+"/admin/users", url.Values{"clientCode": {"55"}, "pin": {"1"}, "name": {"X"}})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = postForm(t, client, app.URL+"/admin/users", url.Values{
		"clientCode": {"6666666666"},
		"pin":        {"654321"},
		"name":       {"Inf"},
		"balance":    {"Inf"},
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Contains(t, body, "Solde initial invalide.")
}

func TestLogoutPage(t *testing.T) {
	app, client := newTestApp(t)
	login(t, app, client, "1234567890", "123456")

	// a plain link cannot log the user out
	res, _ := get(t, client, app.URL+"/logout")
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	res, _ = get(t, client, app.URL+"/dashboard.html")
	require.Equal(t, 200, res.StatusCode)

	res, _ = postForm(t, client, app.URL+"/logout", url.Values{})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/index.html", res.Header.Get("Location"))

	res, _ = get(t, client, app.URL+"/dashboard.html")
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/index.html", res.Header.Get("Location"))
}

func TestSessionEndpoints(t *testing.T) {
	app, client := newTestApp(t)

	res, body := sendJSON(t, client, http.MethodGet, app.URL+"/api/session", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "index.html", body.Redirect)

	res, body = sendJSON(t, client, http.MethodPost, app.URL+"/api/session/login", LoginRequest{ClientCode: "1234567890", Pin: "123456"})
	require.Equal(t, 200, res.StatusCode)
	require.True(t, body.Success)
	require.Equal(t, "Awa Diop", body.User.Name)
	require.False(t, body.User.IsAdmin)

	res, body = sendJSON(t, client, http.MethodGet, app.URL+"/api/session", nil)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, "Bienvenue Awa Diop", body.Header.Greeting)
	require.Equal(t, "/logout", body.Header.LogoutURL)

	res, body = sendJSON(t, client, http.MethodGet, app.URL+"/api/session?adminOnly=true", nil)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Equal(t, "dashboard.html", body.Redirect)

	res, body = sendJSON(t, client, http.MethodPut, app.URL+"/api/session/transaction", TransactionRequest{Type: "depot", Description: "Salaire", Amount: 500})
	require.Equal(t, 200, res.StatusCode)
	require.NotNil(t, body.NewSolde)
	require.Equal(t, 1500.0, *body.NewSolde)

	res, body = sendJSON(t, client, http.MethodPut, app.URL+"/api/session/transaction", TransactionRequest{Type: "depot", Amount: 0})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.False(t, body.Success)

	res, body = sendJSON(t, client, http.MethodGet, app.URL+"/api/session/refresh", nil)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, 1500.0, body.User.Balance)
	require.Len(t, body.User.History, 1)

	res, _ = sendJSON(t, client, http.MethodPost, app.URL+"/api/session/users", CreateUserRequest{ClientCode: "5555555555", Pin: "654321", Name: "Moussa"})
	require.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = sendJSON(t, client, http.MethodPost, app.URL+"/api/session/logout", nil)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, "index.html", body.Redirect)

	res, _ = sendJSON(t, client, http.MethodGet, app.URL+"/api/session", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestSessionsAreIsolatedPerBrowser(t *testing.T) {
	app, first := newTestApp(t)
	login(t, app, first, "1234567890", "123456")

	second := newBrowser(t)

	res, _ := get(t, second, app.URL+"/dashboard.html")
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	res, _ = get(t, first, app.URL+"/dashboard.html")
	require.Equal(t, 200, res.StatusCode)
}

func TestLoginRotatesSessionCookie(t *testing.T) {
	app, victim := newTestApp(t)

	res, _ := get(t, victim, app.URL+"/index.html")
	require.Equal(t, 200, res.StatusCode)
	before := sessionCookie(t, app, victim)

	// someone else holds the pre-login cookie
	other := newBrowser(t)
	u, err := url.Parse(app.URL)
	require.NoError(t, err)
	other.Jar.SetCookies(u, []*http.Cookie{{Name: before.Name, Value: before.Value, Path: "/"}})

	// a failed login keeps the current cookie
	res, _ = postForm(t, victim, app.URL+"/login", url.Values{"clientCode": {"1234567890"}, "pin": {"999999"}})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Empty(t, res.Cookies())
	require.Equal(t, before.Value, sessionCookie(t, app, victim).Value)

	res, _ = postForm(t, victim, app.URL+"/login", url.Values{"clientCode": {"1234567890"}, "pin": {"123456"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Len(t, res.Cookies(), 1)
	require.NotEqual(t, before.Value, sessionCookie(t, app, victim).Value)

	res, body := get(t, victim, app.URL+"/dashboard.html")
	require.Equal(t, 200, res.StatusCode)
	require.Contains(t, body, "Bienvenue Awa Diop")

	res, body = get(t, other, app.URL+"/dashboard.html")
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Equal(t, "/index.html", res.Header.Get("Location"))
	require.NotContains(t, body, "Awa Diop")
}

func TestJSONLoginRotatesSessionCookie(t *testing.T) {
	app, client := newTestApp(t)

	res, _ := sendJSON(t, client, http.MethodGet, app.URL+"/api/session", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	before := sessionCookie(t, app, client)

	res, _ = sendJSON(t, client, http.MethodPost, app.URL+"/api/session/login", LoginRequest{ClientCode: "1234567890", Pin: "123456"})
	require.Equal(t, 200, res.StatusCode)
	require.NotEqual(t, before.Value, sessionCookie(t, app, client).Value)
}

func TestFirstRequestLoginSetsOneCookie(t *testing.T) {
	app, client := newTestApp(t)

	res, _ := postForm(t, client, app.URL+"/login", url.Values{"clientCode": {"1234567890"}, "pin": {"123456"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	require.Len(t, res.Cookies(), 1)

	res, _ = get(t, client, app.URL+"/dashboard.html")
	require.Equal(t, 200, res.StatusCode)
}

// The session belongs to the browser, so its tabs share it.
func TestSessionSharedByTabsOfOneBrowser(t *testing.T) {
	app, browser := newTestApp(t)
	login(t, app, browser, "1234567890", "123456")

	res, _ := sendJSON(t, browser, http.MethodGet, app.URL+"/api/session", nil)
	require.Equal(t, 200, res.StatusCode)

	res, _ = postForm(t, browser, app.URL+"/logout", url.Values{})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	res, _ = sendJSON(t, browser, http.MethodGet, app.URL+"/api/session", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
