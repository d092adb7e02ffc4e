// Package bind decodes and validates an HTTP request body into a struct.
package bind

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shashiranjanraj/filebot/pkg/validate"
)

// MaxBodyBytes caps request bodies. Admin payloads are small.
var MaxBodyBytes int64 = 1 << 20

// Validator is implemented by request types with checks that tags cannot
// express.
// It returns field name to message, or nil when the value is valid.
type Validator interface {
	Validate() map[string]string
}

// JSON decodes r.Body as JSON into dest, then checks its `validate` tags
// and finally its Validate method.
// Returns (errs, nil) when there are validation failures.
// Returns (nil, err) when the body is malformed JSON or too large.
func JSON(w http.ResponseWriter, r *http.Request, dest any) (errs map[string]string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err = dec.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("request body too large (max %d bytes)", maxErr.Limit)
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if errs := validate.Struct(dest); len(errs) > 0 {
		return errs, nil
	}
	if v, ok := dest.(Validator); ok {
		if errs := v.Validate(); len(errs) > 0 {
			return errs, nil
		}
	}
	return nil, nil
}

// QueryInt reads a positive integer query parameter, clamped to max when
// max is positive.
func QueryInt(r *http.Request, key string, fallback, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return fallback
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
