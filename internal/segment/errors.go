package segment

import (
	"fmt"
	"net/http"
)

// ValidationError reports a rule tree the compiler refuses to compile.
// It maps to a 400 at the API boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid segment rules: field %q: %s", e.Field, e.Reason)
	}
	return "invalid segment rules: " + e.Reason
}

// HTTPStatus implements httputil.StatusError.
func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }

// ErrorCode implements httputil.StatusError.
func (e *ValidationError) ErrorCode() string { return "invalid_rules" }
