package hazard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is matched by every report validation failure
var ErrValidation = errors.New("validation failed")

var validate = validator.New()

// ValidationError lists the offending report fields
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "Missing required fields"
	}
	return fmt.Sprintf("Invalid fields: %s", strings.Join(e.Invalid, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validate normalizes r in place and checks it. Reports missing type,
// latitude or longitude are rejected before they reach a store.
func Validate(r *Report) error {
	r.Type = strings.TrimSpace(r.Type)
	r.Location = strings.TrimSpace(r.Location)

	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		name := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			verr.Missing = append(verr.Missing, name)
		} else {
			verr.Invalid = append(verr.Invalid, name)
		}
	}
	return verr
}
