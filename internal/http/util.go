package httpx

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/errors"
)

// parseIntQuery returns the integer value of a query param, def when absent,
// or a validation error when present but not a number.
func parseIntQuery(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.ValidationField(key, key+" must be an integer")
	}
	return i, nil
}

// pathParam returns a trimmed path value or a validation error naming field.
func pathParam(r *http.Request, name, field string) (string, error) {
	v := strings.TrimSpace(r.PathValue(name))
	if v == "" {
		return "", apperrors.ValidationField(field, field+" is required")
	}
	return v, nil
}
