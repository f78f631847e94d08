package handler

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator"

	"github.com/EmanuelC1601/back-end/internal/service"
)

// RequestValidator plugs go-playground/validator into echo.  A failing
// field reports the message from its `msg` tag as a validation error.
type RequestValidator struct {
	Validator *validator.Validate
}

// NewRequestValidator returns a validator ready to assign to echo.Echo.Validator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{Validator: validator.New()}
}

func (rv *RequestValidator) Validate(i any) error {
	if rv.Validator == nil {
		rv.Validator = validator.New()
	}
	err := rv.Validator.Struct(i)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err
	}
	// fields are reported in declaration order; the first one wins
	return service.Invalid(messageFor(i, fields[0]), nil)
}

func messageFor(i any, fe validator.FieldError) string {
	t := reflect.TypeOf(i)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if msg := f.Tag.Get("msg"); msg != "" {
				return msg
			}
		}
	}
	return "El campo " + fe.Field() + " no es válido"
}
