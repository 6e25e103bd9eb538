package core

import (
	"fmt"

	"github.com/google/uuid"
)

type (
	// IDGenerator supplies a fresh opaque identifier on each call.
	IDGenerator interface {
		NewID() string
	}

	// IDGeneratorFunc adapts a function to IDGenerator.
	IDGeneratorFunc func() string

	// UUIDGenerator issues random UUIDv4 strings.
	UUIDGenerator struct{}

	// Confirmer answers a blocking yes/no question before a destructive operation.
	Confirmer interface {
		Confirm(message string) bool
	}

	// ConfirmFunc adapts a function to Confirmer.
	ConfirmFunc func(message string) bool
)

func (f IDGeneratorFunc) NewID() string { return f() }

func (UUIDGenerator) NewID() string { return uuid.NewString() }

func (f ConfirmFunc) Confirm(message string) bool { return f(message) }

// Ledger tracks contributions against a fixed initial budget.
// It is not safe for concurrent use; callers serialize access per session.
type Ledger struct {
	phase         Phase
	initial       Money
	contributions []Contribution // newest first
	ids           IDGenerator
}

// NewLedger returns an empty ledger waiting for its budget.
func NewLedger(ids IDGenerator) *Ledger {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Ledger{phase: PhaseConfiguring, ids: ids}
}

// RestoreLedger rebuilds a ledger from stored state. contributions must be newest first.
func RestoreLedger(ids IDGenerator, phase Phase, initial Money, contributions []Contribution) (*Ledger, error) {
	l := NewLedger(ids)
	switch phase {
	case PhaseConfiguring:
		if len(contributions) > 0 {
			return nil, fmt.Errorf("restore ledger: %d contributions before configuration", len(contributions))
		}
		return l, nil
	case PhaseCollecting:
		if initial.Cents <= 0 {
			return nil, fmt.Errorf("restore ledger: %w", ErrNonPositiveBudget)
		}
	default:
		return nil, fmt.Errorf("restore ledger: %w: %d", ErrInvalidPhase, phase)
	}
	for _, c := range contributions {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("restore ledger: contribution %q: %w", c.ID, err)
		}
	}
	l.phase = phase
	l.initial = initial
	l.contributions = append([]Contribution(nil), contributions...)
	return l, nil
}

func (l *Ledger) Phase() Phase { return l.phase }

func (l *Ledger) InitialBudget() Money { return l.initial }

// Contributions returns a copy of the list, newest first.
func (l *Ledger) Contributions() []Contribution {
	return append([]Contribution(nil), l.contributions...)
}

func (l *Ledger) Len() int { return len(l.contributions) }

// Total sums every contribution amount.
func (l *Ledger) Total() Money {
	var total Money
	for _, c := range l.contributions {
		total = total.Add(c.Amount)
	}
	return total
}

// Remaining is recomputed from the list on every call.
func (l *Ledger) Remaining() Money {
	return l.initial.Sub(l.Total())
}

// Configure commits the initial budget and opens the ledger.
func (l *Ledger) Configure(budget Money) error {
	if l.phase != PhaseConfiguring {
		return ErrAlreadyConfigured
	}
	if budget.Cents <= 0 {
		return ErrNonPositiveBudget
	}
	l.initial = budget
	l.phase = PhaseCollecting
	return nil
}

// Add validates the form and prepends the new contribution.
// Nothing changes when an error is returned.
func (l *Ledger) Add(form ContributionForm) (Contribution, error) {
	if l.phase != PhaseCollecting {
		return Contribution{}, ErrNotConfigured
	}
	c, err := form.Validate()
	if err != nil {
		return Contribution{}, err
	}
	if c.Amount.Cents > l.Remaining().Cents {
		return Contribution{}, ErrExceedsRemaining
	}
	c.ID = l.ids.NewID()
	l.contributions = append([]Contribution{c}, l.contributions...)
	return c, nil
}

// Delete removes the contribution with the given id once confirm agrees.
// It reports whether a contribution was removed; unknown ids are a no-op.
func (l *Ledger) Delete(id string, confirm Confirmer) bool {
	if confirm == nil || !confirm.Confirm(MsgConfirmDelete) {
		return false
	}
	for i, c := range l.contributions {
		if c.ID == id {
			l.contributions = append(l.contributions[:i:i], l.contributions[i+1:]...)
			return true
		}
	}
	return false
}
