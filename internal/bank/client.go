package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	appErrors "github.com/fatali-fataliyev/ecbank_web/customErrors"
	"github.com/fatali-fataliyev/ecbank_web/internal/contextutil"
	"github.com/fatali-fataliyev/ecbank_web/logging"
)

const (
	MsgLoginRejected       = "Code client ou PIN incorrect."
	MsgLoginNetwork        = "Impossible de contacter le serveur. (Erreur réseau/Render)."
	MsgFetchUserFailed     = "Impossible de récupérer les données utilisateur."
	MsgTransactionRejected = "Erreur lors de la transaction."
	MsgTransactionNetwork  = "Impossible de contacter le serveur pour la transaction."
	MsgCreateUserRejected  = "Erreur lors de la création de l'utilisateur."
	MsgCreateUserNetwork   = "Impossible de contacter le serveur pour la création de l'utilisateur."
	MsgUnexpectedResponse  = "Réponse inattendue du serveur."
)

// Client talks to the remote banking API. Every call is a single attempt
// with no timeout other than the one configured on the http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login posts the credentials. The returned user is exactly what the server
// sent; admin resolution is left to the caller.
func (c *Client) Login(ctx context.Context, clientCode string, pin string) (LoginResult, error) {
	body := loginRequest{ClientCode: clientCode, Pin: pin}

	resp, status, err := c.do(ctx, "Client.Login()", http.MethodPost, "/api/login", body, MsgLoginNetwork)
	if err != nil {
		return LoginResult{}, err
	}
	if !isSuccess(status, resp) {
		return LoginResult{}, rejection(status, resp, MsgLoginRejected)
	}
	if resp.User == nil {
		return LoginResult{}, unexpected(ctx, "Client.Login()")
	}

	return LoginResult{
		User:  *resp.User,
		Users: resp.Users,
		Token: resp.Token,
	}, nil
}

func (c *Client) GetUser(ctx context.Context, clientCode string) (User, error) {
	path := "/api/users/" + url.PathEscape(clientCode)

	resp, status, err := c.do(ctx, "Client.GetUser()", http.MethodGet, path, nil, MsgFetchUserFailed)
	if err != nil {
		return User{}, err
	}
	if !isSuccess(status, resp) {
		return User{}, rejection(status, resp, MsgFetchUserFailed)
	}
	if resp.User == nil {
		return User{}, unexpected(ctx, "Client.GetUser()")
	}
	return *resp.User, nil
}

// AddTransaction appends t to the user's history and returns the balance
// computed by the server.
func (c *Client) AddTransaction(ctx context.Context, clientCode string, t Transaction) (float64, error) {
	path := "/api/users/" + url.PathEscape(clientCode) + "/history"

	resp, status, err := c.do(ctx, "Client.AddTransaction()", http.MethodPut, path, t, MsgTransactionNetwork)
	if err != nil {
		return 0, err
	}
	if !isSuccess(status, resp) {
		return 0, rejection(status, resp, MsgTransactionRejected)
	}
	if resp.NewSolde == nil {
		return 0, unexpected(ctx, "Client.AddTransaction()")
	}
	return *resp.NewSolde, nil
}

func (c *Client) CreateUser(ctx context.Context, newUser NewUser) (User, error) {
	resp, status, err := c.do(ctx, "Client.CreateUser()", http.MethodPost, "/api/users", newUser, MsgCreateUserNetwork)
	if err != nil {
		return User{}, err
	}
	if !isSuccess(status, resp) {
		return User{}, rejection(status, resp, MsgCreateUserRejected)
	}
	if resp.User == nil {
		return User{}, unexpected(ctx, "Client.CreateUser()")
	}
	return *resp.User, nil
}

// do sends one request and decodes the envelope. Any transport failure,
// including a body that is not JSON, comes back as an ErrNetwork response
// carrying networkMsg; the cause is only logged.
func (c *Client) do(ctx context.Context, caller string, method string, path string, body any, networkMsg string) (apiResponse, int, error) {
	traceID := contextutil.TraceIDFromContext(ctx)
	networkErr := appErrors.ErrorResponse{
		Code:    appErrors.ErrNetwork,
		Message: networkMsg,
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			logging.Logger.Errorf("[TraceID=%s] | failed to encode request body in %s | Error: %v", traceID, caller, err)
			return apiResponse{}, 0, networkErr
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to build request in %s | Error: %v", traceID, caller, err)
		return apiResponse{}, 0, networkErr
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | remote API unreachable in %s | Error: %v", traceID, caller, err)
		return apiResponse{}, 0, networkErr
	}
	defer res.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		logging.Logger.Errorf("[TraceID=%s] | failed to decode %s %s response (status %d) in %s | Error: %v", traceID, method, path, res.StatusCode, caller, err)
		return apiResponse{}, res.StatusCode, networkErr
	}

	logging.Logger.Debugf("[TraceID=%s] | %s %s -> %d success=%v", traceID, method, path, res.StatusCode, decoded.Success)
	return decoded, res.StatusCode, nil
}

func isSuccess(status int, resp apiResponse) bool {
	return status >= 200 && status < 300 && resp.Success
}

func rejection(status int, resp apiResponse, fallback string) error {
	msg := resp.Message
	if strings.TrimSpace(msg) == "" {
		msg = fallback
	}
	return appErrors.ErrorResponse{
		Code:    codeFromStatus(status),
		Message: msg,
	}
}

func unexpected(ctx context.Context, caller string) error {
	logging.Logger.Errorf("[TraceID=%s] | successful response without payload in %s", contextutil.TraceIDFromContext(ctx), caller)
	return appErrors.ErrorResponse{
		Code:    appErrors.ErrInternal,
		Message: MsgUnexpectedResponse,
	}
}

func codeFromStatus(status int) string {
	switch {
	case status >= 200 && status < 300:
		return appErrors.ErrRejected
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return appErrors.ErrInvalidInput
	case status == http.StatusUnauthorized:
		return appErrors.ErrAuth
	case status == http.StatusForbidden:
		return appErrors.ErrAccessDenied
	case status == http.StatusNotFound:
		return appErrors.ErrNotFound
	case status == http.StatusConflict:
		return appErrors.ErrConflict
	default:
		return appErrors.ErrRejected
	}
}

