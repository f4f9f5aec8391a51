package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/avrebarra/lumora/pkg/llm"
)

// statusForKind maps a classified error to the HTTP status the caller sees.
var statusForKind = map[llm.Kind]int{
	llm.KindAuthError:          http.StatusUnauthorized,
	llm.KindInsufficientCredit: http.StatusPaymentRequired,
	llm.KindAccountSuspended:   http.StatusForbidden,
	llm.KindModelDisabled:      http.StatusForbidden,
	llm.KindModelNotFound:      http.StatusNotFound,
	llm.KindContentBlocked:     http.StatusUnprocessableEntity,
	llm.KindRateLimited:        http.StatusTooManyRequests,
	llm.KindBackendError:       http.StatusBadGateway,
	llm.KindTimeout:            http.StatusServiceUnavailable,
	llm.KindConfigurationError: http.StatusInternalServerError,
	llm.KindStoreError:         http.StatusInternalServerError,
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeError translates a classified error into an HTTP response.
// Unclassified errors never leak their text; they become a generic 500.
func writeError(w http.ResponseWriter, err error) {
	kind := llm.KindOf(err)

	status, ok := statusForKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := errorResponse{Kind: string(kind)}
	var cerr *llm.Error
	if errors.As(err, &cerr) {
		body.Error = cerr.Message
	} else {
		body.Error = "internal error"
		status = http.StatusInternalServerError
	}

	if hint, ok := llm.RetryAfterHint(err); ok {
		secs := int(hint.Seconds())
		if secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			body.RetryAfter = secs
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
