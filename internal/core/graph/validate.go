package graph

import (
	"errors"

	"github.com/agenthands/argus/internal/core/model"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Check runs struct-level validation and reports the first failing field as a ValidationError.
func Check(kind model.RefKind, id string, v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(kind, id, "field %s failed %q check", fe.Field(), fe.Tag())
	}
	return model.NewValidationError(kind, id, "%v", err)
}
