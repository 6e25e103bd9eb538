package core

import (
	"errors"
	"strings"
)

// User-facing messages shown by the alert and confirmation collaborators.
const (
	MsgNonPositiveBudget = "Le budget initial doit être supérieur à 0 !"
	MsgExceedsRemaining  = "Le montant dépasse le budget restant !"
	MsgConfirmDelete     = "Êtes-vous sûr de vouloir supprimer cette contribution ?"
)

const (
	PhaseConfiguring Phase = iota
	PhaseCollecting
)

type (
	// Phase is the session stage that decides which operations are reachable.
	Phase int

	Money struct {
		Cents int64
	}

	Contribution struct {
		ID        string
		Surname   string
		GivenName string
		Phone     string
		Amount    Money
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNonPositiveBudget = errors.New("initial budget must be greater than zero")
	ErrExceedsRemaining  = errors.New("amount exceeds the remaining budget")
	ErrInvalidForm       = errors.New("invalid contribution")
	ErrAlreadyConfigured = errors.New("budget already configured")
	ErrNotConfigured     = errors.New("budget not configured")
	ErrInvalidPhase      = errors.New("invalid phase")
)

func (p Phase) String() string {
	switch p {
	case PhaseConfiguring:
		return "configuring"
	case PhaseCollecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "configuring":
		return PhaseConfiguring, nil
	case "collecting":
		return PhaseCollecting, nil
	}
	return 0, ErrInvalidPhase
}

func (c Contribution) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("empty contribution id")
	}
	if strings.TrimSpace(c.Surname) == "" || strings.TrimSpace(c.GivenName) == "" {
		return ErrInvalidForm
	}
	if c.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// UserMessage maps a domain error to the fixed message displayed to the user.
// The second result is false for errors that are not user validation failures.
func UserMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrNonPositiveBudget):
		return MsgNonPositiveBudget, true
	case errors.Is(err, ErrExceedsRemaining):
		return MsgExceedsRemaining, true
	case errors.Is(err, ErrInvalidAmount):
		return "Montant invalide", true
	case errors.Is(err, ErrInvalidForm):
		return "Veuillez remplir tous les champs", true
	case errors.Is(err, ErrNotConfigured):
		return "Le budget n'est pas encore configuré", true
	case errors.Is(err, ErrAlreadyConfigured):
		return "Le budget est déjà configuré", true
	}
	return "", false
}
