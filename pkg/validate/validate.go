package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every error returned from Struct.
var ErrInvalid = errors.New("invalid argument")

var v *validator.Validate

var permissionName = regexp.MustCompile(`^[a-z]+\.[a-z_]+$`)

func init() {
	v = validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "member", "admin", "super_admin":
			return true
		}
		return false
	})
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return permissionName.MatchString(fl.Field().String())
	})
}

// Struct validates s using `validate` struct tags and flattens failures into one message.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(parts, "; "))
}

// Var validates a single value against a tag expression, e.g. Var(email, "required,email").
func Var(field any, tag string) error {
	if err := v.Var(field, tag); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
