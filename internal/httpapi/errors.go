package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	otcAuth "github.com/MrEthical07/otcAuth"
	"go.uber.org/zap"
)

// apiError is the body of every non-2xx response.
type apiError struct {
	Code    string               `json:"error_code"`
	Message string               `json:"error_message"`
	Fields  []otcAuth.FieldError `json:"fields,omitempty"`
}

var errorMessages = map[string]string{
	"account_not_confirmed":  "Account not confirmed",
	"invalid_credentials":    "Invalid email or password",
	"otc_not_found":          "Code is invalid or has expired",
	"reset_token_not_found":  "Reset token is invalid or has expired",
	"authentication_failure": "Authentication required",
	"validation_failure":     "Invalid request",
	"forbidden":              "Forbidden",
	"conflict":               "Email is already registered",
	"rate_limited":           "Too many requests",
	"internal_failure":       "Internal server error",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// writeEngineError maps an engine error onto the envelope. Internal
// failures are logged and never echoed to the client.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := otcAuth.KindOf(err)
	code := otcAuth.ErrorCode(err)

	body := apiError{Code: code, Message: errorMessages[code]}
	var verr *otcAuth.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	if kind == otcAuth.KindInternal {
		s.logger.Error("request failed",
			zap.String("request_id", otcAuth.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	writeJSON(w, kind.HTTPStatus(), body)
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failure", "Malformed JSON body")
		return false
	}
	return true
}
