package serverutils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest runs the struct's `validate` tags. The returned
// validator.ValidationErrors is turned into a 400 by ErrorHandler.
func ValidateRequest(req interface{}) error {
	return validate.Struct(req)
}
