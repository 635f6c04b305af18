package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/rs/zerolog"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeRaw passes an upstream JSON document through untouched.
func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	_, _ = w.Write(body)
}

func writeJSONError(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeError maps err onto its HTTP status and logs server side failures.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("Request failed")
	}
	writeJSONError(w, code, err.Error(), status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "malformed JSON body: %v", err)
	}
	return nil
}

// requireFields returns an invalid request error naming every empty field.
func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return errors.Wrapf(errors.ErrInvalidRequest, "missing %s", strings.Join(missing, ", "))
}
