package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks client errors: blank city, missing timestamp, missing payload.
// Callers match it with errors.Is and map it to 400.
var ErrValidation = errors.New("validation failed")

var (
	// ErrCityEmpty is returned when city is empty or whitespace-only after trim.
	ErrCityEmpty = fmt.Errorf("%w: city can't be blank", ErrValidation)
	// ErrCityTooShort is returned when city length is below the minimum.
	ErrCityTooShort = fmt.Errorf("%w: city too short", ErrValidation)
	// ErrCityTooLong is returned when city length exceeds the maximum.
	ErrCityTooLong = fmt.Errorf("%w: city too long", ErrValidation)
	// ErrCityInvalidChars is returned when city contains disallowed characters.
	ErrCityInvalidChars = fmt.Errorf("%w: city contains invalid characters", ErrValidation)
	// ErrTimestampMissing is returned when a forecast or save lacks its date.
	ErrTimestampMissing = fmt.Errorf("%w: date is missing", ErrValidation)
)

const cityCharsTag = "citychars"

// Validator checks request input. Safe for concurrent use.
type Validator struct {
	v      *validator.Validate
	minLen int
	maxLen int
}

// New returns a Validator enforcing city length bounds in runes (0 disables a bound).
func New(minLen, maxLen int) *Validator {
	v := validator.New()
	_ = v.RegisterValidation(cityCharsTag, func(fl validator.FieldLevel) bool {
		for _, c := range fl.Field().String() {
			if !isAllowedCityRune(c) {
				return false
			}
		}
		return true
	})
	return &Validator{v: v, minLen: minLen, maxLen: maxLen}
}

// City trims the input and enforces non-blank, length bounds and the allowed
// character set: letters (Unicode), digits, space, comma, hyphen, apostrophe, period.
// Returns the trimmed city.
func (val *Validator) City(input string) (string, error) {
	s := strings.TrimSpace(input)
	if err := val.v.Var(s, "required"); err != nil {
		return "", ErrCityEmpty
	}
	n := len([]rune(s))
	if val.minLen > 0 && n < val.minLen {
		return "", ErrCityTooShort
	}
	if val.maxLen > 0 && n > val.maxLen {
		return "", ErrCityTooLong
	}
	if err := val.v.Var(s, cityCharsTag); err != nil {
		return "", ErrCityInvalidChars
	}
	return s, nil
}

// Struct runs tag-based validation on a request body and wraps failures in ErrValidation.
func (val *Validator) Struct(s interface{}) error {
	if err := val.v.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed on %s", ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
