// Package validate decodes request bodies strictly and checks them against
// their struct tags.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"jimgabang/apperr"
	"jimgabang/models"
)

const maxBody = 1 << 20

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// bcrypt reads at most 72 bytes of a password, not 72 characters.
	_ = val.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	// Unset optionals are a nil pointer so omitempty skips them; a set
	// zero value is still checked.
	val.RegisterCustomTypeFunc(func(f reflect.Value) any {
		o := f.Interface().(models.Optional[string])
		if !o.IsSet() {
			return (*string)(nil)
		}
		return &o.Value
	}, models.Optional[string]{})
	val.RegisterCustomTypeFunc(func(f reflect.Value) any {
		o := f.Interface().(models.Optional[int])
		if !o.IsSet() {
			return (*int)(nil)
		}
		return &o.Value
	}, models.Optional[int]{})
	val.RegisterCustomTypeFunc(func(f reflect.Value) any {
		o := f.Interface().(models.Optional[float64])
		if !o.IsSet() {
			return (*float64)(nil)
		}
		return &o.Value
	}, models.Optional[float64]{})
	val.RegisterCustomTypeFunc(func(f reflect.Value) any {
		o := f.Interface().(models.Optional[[]string])
		if !o.IsSet() {
			return (*[]string)(nil)
		}
		return &o.Value
	}, models.Optional[[]string]{})
	return val
}

// Struct validates s and converts failures into a 422 with one message per
// offending JSON field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.Internal, "validation failed", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = message(fe)
	}
	return apperr.NewValidation("request body failed validation", fields)
}

// Decode reads a single JSON object from r into dst, rejecting unknown
// fields and trailing data, then validates it.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return apperr.NewValidation("request body must contain a single JSON object", nil)
	}
	return Struct(dst)
}

func decodeError(err error) error {
	var (
		syntax *json.SyntaxError
		typ    *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return apperr.NewValidation("request body is empty", nil)
	case errors.As(err, &syntax):
		return apperr.NewValidation(fmt.Sprintf("malformed JSON at offset %d", syntax.Offset), nil)
	case errors.As(err, &typ):
		field := typ.Field
		if field == "" {
			field = "body"
		}
		return apperr.NewValidation("request body failed validation",
			map[string]string{field: "must be a " + typ.Type.String()})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		name := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperr.NewValidation("request body failed validation",
			map[string]string{name: "unknown field"})
	default:
		return apperr.NewValidation("malformed request body: "+err.Error(), nil)
	}
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if isCollection(fe.Kind()) {
			return "must contain at least " + fe.Param() + " item(s)"
		}
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "maxbytes":
		return "must be at most " + fe.Param() + " bytes"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	case "latitude", "longitude":
		return "must be a valid " + fe.Tag()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func isCollection(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array || k == reflect.Map
}
