package apiutil

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/Aidin1998/amlwatch/common/errors"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// UseJSONFieldNames makes gin's validator report json names instead of Go
// field names, so problem responses name the field the client sent.
func UseJSONFieldNames() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(jsonTagName)
		}
	})
}

func jsonTagName(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" {
		tag = fld.Tag.Get("form")
	}
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// ValidationProblem converts a binding error into a 400 problem with one entry per field
func ValidationProblem(err error, instance string) *errors.ProblemDetails {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.NewValidationError("request binding failed: "+err.Error(), instance)
	}
	pd := errors.NewValidationError("request validation failed", instance)
	for _, fe := range fieldErrs {
		pd.AddValidationError(fe.Field(), "failed on the '"+fe.Tag()+"' rule", fe.Tag())
	}
	return pd
}
