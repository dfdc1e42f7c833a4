package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 16

// Validator checks decoded request payloads against their `validate` tags.
// Field names in details follow the json tag.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator reporting json field names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	// Missing or null decimals read as nil so `required` rejects them.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.NullDecimal)
		if !ok || !d.Valid {
			return nil
		}
		f, _ := d.Decimal.Float64()
		return f
	}, decimal.NullDecimal{})
	return &Validator{v: v}
}

// Struct validates s and converts failures to a BAD_REQUEST AppError whose
// details map each field to the rule it broke.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return BadRequest("invalid request payload", err)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fe.Field()] = rule
	}
	return BadRequest("validation failed", err).WithDetails(details)
}

// DecodeJSON reads a single JSON object from r into dst, rejecting unknown
// fields, trailing data and oversized bodies.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return NewAppError(CodeBadRequest, "request body too large", http.StatusRequestEntityTooLarge, err)
		case errors.Is(err, io.EOF):
			return BadRequest("request body is required", err)
		default:
			return BadRequest("invalid request payload", err)
		}
	}
	if dec.More() {
		return BadRequest("invalid request payload", fmt.Errorf("unexpected trailing data"))
	}
	return nil
}
