package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	appErrors "github.com/fatali-fataliyev/ecbank_web/customErrors"
	"github.com/fatali-fataliyev/ecbank_web/internal/bank"
	"github.com/fatali-fataliyev/ecbank_web/internal/gateway"
)

// REQUESTS START:
type LoginRequest struct {
	ClientCode string `json:"clientCode"`
	Pin        string `json:"pin"`
}

type TransactionRequest struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type CreateUserRequest struct {
	ClientCode string  `json:"clientCode"`
	Pin        string  `json:"pin"`
	Name       string  `json:"name"`
	Balance    float64 `json:"balance"`
}

//REQUESTS END:

//RESPONSES:

type UserItem struct {
	ClientCode     string             `json:"clientCode"`
	Name           string             `json:"name"`
	LastConnection string             `json:"lastConnection,omitempty"`
	IsAdmin        bool               `json:"isAdmin"`
	Balance        float64            `json:"balance"`
	History        []HistoryEntryItem `json:"history"`
}

type HistoryEntryItem struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date,omitempty"`
}

type HeaderItem struct {
	Greeting       string `json:"greeting"`
	LastConnection string `json:"lastConnection,omitempty"`
	LogoutURL      string `json:"logoutUrl"`
}

// SessionResponse mirrors the envelope of the remote API, plus the guard
// outcome.
type SessionResponse struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message,omitempty"`
	User     *UserItem   `json:"user,omitempty"`
	NewSolde *float64    `json:"newSolde,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
	Header   *HeaderItem `json:"header,omitempty"`
}

func httpStatusFromError(err error) int {
	switch appErrors.CodeOf(err) {
	case appErrors.ErrNotFound:
		return 404 // not found
	case appErrors.ErrInvalidInput:
		return 400 // bad request
	case appErrors.ErrAuth:
		return 401 // unauthorized
	case appErrors.ErrAccessDenied:
		return 403 // access denied
	case appErrors.ErrConflict:
		return 409 // conflict
	case appErrors.ErrRejected:
		return 422 // refused by the bank
	case appErrors.ErrNetwork:
		return 502 // bank unreachable
	default:
		return 500 //internal error
	}
}

func failure(err error) SessionResponse {
	return SessionResponse{
		Success: false,
		Message: appErrors.MessageOf(err),
	}
}

func UserToHttp(user bank.User) *UserItem {
	history := make([]HistoryEntryItem, 0, len(user.History))
	for _, entry := range user.History {
		history = append(history, HistoryEntryItem{
			Type:        entry.Type,
			Description: entry.Description,
			Amount:      entry.Amount,
			Date:        entry.Date,
		})
	}
	return &UserItem{
		ClientCode:     user.ClientCode,
		Name:           user.Name,
		LastConnection: user.LastConnection,
		IsAdmin:        user.IsAdmin,
		Balance:        user.Balance,
		History:        history,
	}
}

func HeaderToHttp(header gateway.Header) *HeaderItem {
	return &HeaderItem{
		Greeting:       header.Greeting,
		LastConnection: header.LastConnection,
		LogoutURL:      header.LogoutURL,
	}
}

// TransactionFromForm reads a transaction posted by the dashboard form.
// The amount accepts a decimal comma.
func TransactionFromForm(form url.Values) (bank.Transaction, error) {
	amountStr := strings.ReplaceAll(strings.TrimSpace(form.Get("amount")), ",", ".")
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return bank.Transaction{}, appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Montant invalide : '%s'", form.Get("amount")),
		}
	}

	// debits are entered as positive amounts and signed here
	if form.Get("direction") == "debit" && amount > 0 {
		amount = -amount
	}

	return bank.Transaction{
		Type:        strings.TrimSpace(form.Get("type")),
		Description: strings.TrimSpace(form.Get("description")),
		Amount:      amount,
	}, nil
}

func NewUserFromForm(form url.Values) (bank.NewUser, error) {
	balance := 0.0
	if balanceStr := strings.TrimSpace(form.Get("balance")); balanceStr != "" {
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(balanceStr, ",", "."), 64)
		if err != nil {
			return bank.NewUser{}, appErrors.ErrorResponse{
				Code:    appErrors.ErrInvalidInput,
				Message: fmt.Sprintf("Solde invalide : '%s'", balanceStr),
			}
		}
		balance = parsed
	}

	return bank.NewUser{
		ClientCode: strings.TrimSpace(form.Get("clientCode")),
		Pin:        strings.TrimSpace(form.Get("pin")),
		Name:       strings.TrimSpace(form.Get("name")),
		Balance:    balance,
	}, nil
}
