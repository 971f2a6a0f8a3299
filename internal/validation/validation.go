// Package validation checks request bodies before they reach the scorer.
package validation

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB)
const MaxRequestSize = 64 << 10

// Field length limits, in bytes. They match the audit table columns.
const (
	MaxAttributeLength  = 16 // age, gender
	MaxIdentifierLength = 64 // merchant, category
)

// TransactionFields are the keys every scoring request must carry, in the
// order they are reported when missing.
var TransactionFields = []string{"step", "amount", "age", "gender", "merchant", "category"}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators in order and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Present checks that key exists in a decoded JSON object. A present key
// with an empty or null value passes: only absence is an error.
func Present(body map[string]json.RawMessage, key string) func() *ValidationError {
	return func() *ValidationError {
		if _, ok := body[key]; !ok {
			return &ValidationError{Field: key, Message: "Missing required field: " + key}
		}
		return nil
	}
}

// FirstMissing returns the first of fields absent from body, or nil.
func FirstMissing(body map[string]json.RawMessage, fields []string) *ValidationError {
	for _, f := range fields {
		if err := Present(body, f)(); err != nil {
			return err
		}
	}
	return nil
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// NoNullBytes rejects values carrying a NUL byte, which Postgres text
// columns cannot store.
func NoNullBytes(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.ContainsRune(value, 0) {
			return &ValidationError{Field: field, Message: "contains a null byte"}
		}
		return nil
	}
}

// TransactionStrings checks the string attributes of a scoring request.
// Values are kept exactly as sent.
func TransactionStrings(age, gender, merchant, category string) ValidationErrors {
	return Validate(
		NoNullBytes("age", age),
		NoNullBytes("gender", gender),
		NoNullBytes("merchant", merchant),
		NoNullBytes("category", category),
		MaxLength("age", age, MaxAttributeLength),
		MaxLength("gender", gender, MaxAttributeLength),
		MaxLength("merchant", merchant, MaxIdentifierLength),
		MaxLength("category", category, MaxIdentifierLength),
	)
}
