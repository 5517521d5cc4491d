package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Submission is a complete candidate workflow as authored by an administrator.
// Stages may carry a TempID instead of an ID; transitions may reference either.
type Submission struct {
	Name            string          `json:"name" yaml:"name" validate:"required,max=100"`
	ApplicationType ApplicationType `json:"application_type" yaml:"application_type" validate:"required,oneof=undergraduate graduate transfer international scholarship"`
	Version         int             `json:"version,omitempty" yaml:"version,omitempty" validate:"gte=0"`
	Stages          []Stage         `json:"stages" yaml:"stages"`
	Transitions     []Transition    `json:"transitions" yaml:"transitions"`
}

var validate = newFieldValidator()

func newFieldValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CheckFields validates the submission's own fields (name, application type,
// version) and reports problems in the same shape as the graph validator.
func (s Submission) CheckFields() []ValidationError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Path: "", Code: CodeInvalidValue, Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, translateFieldError(fe))
	}
	return out
}

func translateFieldError(fe validator.FieldError) ValidationError {
	path := fe.Field()
	switch fe.Tag() {
	case "required":
		return ValidationError{Path: path, Code: CodeRequired, Message: fmt.Sprintf("%s is required", path)}
	case "max":
		return ValidationError{Path: path, Code: CodeNameTooLong, Message: fmt.Sprintf("%s exceeds %s characters", path, fe.Param())}
	case "oneof":
		return ValidationError{Path: path, Code: CodeInvalidEnum, Message: fmt.Sprintf("invalid %s %q", path, fe.Value())}
	default:
		return ValidationError{Path: path, Code: CodeInvalidValue, Message: fmt.Sprintf("%s failed %s check", path, fe.Tag())}
	}
}
