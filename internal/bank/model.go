package bank

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	appErrors "github.com/fatali-fataliyev/ecbank_web/customErrors"
)

const (
	MAX_DESCRIPTION_LENGTH = 255
	MAX_NAME_LENGTH        = 255
	Epsilon                = 1e-9
)

var (
	clientCodeRegex = regexp.MustCompile(`^[0-9]{10}$`)
	pinRegex        = regexp.MustCompile(`^[0-9]{6}$`)
)

type User struct {
	ClientCode     string         `json:"clientCode"`
	Pin            string         `json:"pin,omitempty"`
	Name           string         `json:"name"`
	LastConnection string         `json:"lastConnection,omitempty"`
	IsAdmin        bool           `json:"isAdmin"`
	Role           string         `json:"role,omitempty"`
	Balance        float64        `json:"balance"`
	History        []HistoryEntry `json:"history,omitempty"`
}

type HistoryEntry struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date,omitempty"`
}

// Transaction is appended to a user's history. A negative amount is a
// debit, a positive one a credit.
type Transaction struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type NewUser struct {
	ClientCode string  `json:"clientCode"`
	Pin        string  `json:"pin"`
	Name       string  `json:"name"`
	Balance    float64 `json:"balance"`
}

type LoginResult struct {
	User  User
	Users []User
	Token string
}

type loginRequest struct {
	ClientCode string `json:"clientCode"`
	Pin        string `json:"pin"`
}

// apiResponse is the envelope every remote endpoint answers with.
type apiResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	User     *User    `json:"user,omitempty"`
	NewSolde *float64 `json:"newSolde,omitempty"`
	Users    []User   `json:"users,omitempty"`
	Token    string   `json:"token,omitempty"`
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Type) == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Le type de transaction est obligatoire.",
		}
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Montant invalide.",
		}
	}
	if math.Abs(t.Amount) < Epsilon {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Le montant de la transaction doit être différent de zéro.",
		}
	}
	if len(t.Description) > MAX_DESCRIPTION_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Description trop longue, maximum %d caractères.", MAX_DESCRIPTION_LENGTH),
		}
	}
	return nil
}

func (newUser NewUser) Validate() error {
	if !clientCodeRegex.MatchString(newUser.ClientCode) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Le code client doit contenir exactement 10 chiffres.",
		}
	}
	if !pinRegex.MatchString(newUser.Pin) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Le PIN doit contenir exactement 6 chiffres.",
		}
	}
	if strings.TrimSpace(newUser.Name) == "" {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Le nom est obligatoire.",
		}
	}
	if len(newUser.Name) > MAX_NAME_LENGTH {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: fmt.Sprintf("Nom trop long, maximum %d caractères.", MAX_NAME_LENGTH),
		}
	}
	if math.IsNaN(newUser.Balance) || math.IsInf(newUser.Balance, 0) {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Solde initial invalide.",
		}
	}
	if newUser.Balance < 0 {
		return appErrors.ErrorResponse{
			Code:    appErrors.ErrInvalidInput,
			Message: "Le solde initial ne peut pas être négatif.",
		}
	}
	return nil
}
