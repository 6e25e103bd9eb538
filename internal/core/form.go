package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ContributionForm holds the raw field values of the contribution form
// between keystrokes and submission.
type ContributionForm struct {
	Surname   string `validate:"required,max=100"`
	GivenName string `validate:"required,max=100"`
	Phone     string `validate:"required,max=32"`
	Amount    string `validate:"required"`
}

// Normalized returns a copy with trimmed fields and the phone number formatted.
func (f ContributionForm) Normalized() ContributionForm {
	return ContributionForm{
		Surname:   strings.TrimSpace(f.Surname),
		GivenName: strings.TrimSpace(f.GivenName),
		Phone:     FormatPhone(strings.TrimSpace(f.Phone)),
		Amount:    strings.TrimSpace(f.Amount),
	}
}

// Reset clears every field.
func (f *ContributionForm) Reset() {
	*f = ContributionForm{}
}

// Validate checks the form and returns the candidate contribution without an ID.
func (f ContributionForm) Validate() (Contribution, error) {
	n := f.Normalized()
	if err := validate.Struct(n); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return Contribution{}, fmt.Errorf("%w: %s", ErrInvalidForm, strings.Join(fields, ", "))
		}
		return Contribution{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	amount, err := ParseAmount(n.Amount)
	if err != nil {
		return Contribution{}, err
	}
	return Contribution{
		Surname:   n.Surname,
		GivenName: n.GivenName,
		Phone:     n.Phone,
		Amount:    amount,
	}, nil
}
