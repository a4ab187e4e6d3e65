package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies accepted by the validation stage.
const maxBodyBytes = 1 << 20

// validate is the process-wide validator instance. Struct tag parsing is
// cached internally, so sharing one instance is both safe and cheap.
var validate = validator.New(validator.WithRequiredStructEnabled())

// validateBody decodes the JSON body into a fresh instance from newInput and
// runs struct validation. The decoded value is available to the handler via
// GetInput. Unknown fields are rejected so typos fail loudly instead of
// silently dropping data.
func validateBody(newInput func() any) Stage {
	return Stage{
		Name: "validate",
		Run: func(rc *Ctx) *Rejection {
			input := newInput()

			dec := json.NewDecoder(http.MaxBytesReader(rc.W, rc.R.Body, maxBodyBytes))
			dec.DisallowUnknownFields()
			if err := dec.Decode(input); err != nil {
				return reject(http.StatusBadRequest, CodeValidationFailed,
					"request body is not valid JSON", "validation")
			}

			if err := validate.Struct(input); err != nil {
				var invalid *validator.InvalidValidationError
				if errors.As(err, &invalid) {
					return rejectInternal(err)
				}
				return reject(http.StatusBadRequest, CodeValidationFailed,
					validationMessage(err), "validation")
			}

			rc.Input = input
			return nil
		},
	}
}

// validationMessage flattens field errors into one stable message. Field
// names come from the struct, not the raw payload, so nothing client-supplied
// is reflected back.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "request validation failed"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
