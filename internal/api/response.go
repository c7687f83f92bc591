package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/pathflow/internal/engine"
	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the error envelope. Kind is the fault kind when the error
// carries one.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFault picks the status from err's fault kind.
func writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := fault.KindOf(err)
	switch {
	case errors.Is(err, engine.ErrUnknownEntryPoint):
		status = http.StatusUnprocessableEntity
	case kind == fault.KindMisconfiguration:
		status = http.StatusUnprocessableEntity
	case kind == fault.KindCancelled:
		// nginx's "client closed request"; the caller is gone anyway.
		status = 499
	case kind == fault.KindResourceExhausted:
		status = http.StatusServiceUnavailable
	}
	resp := errorResponse{Error: err.Error()}
	if kind != fault.KindUnknown {
		resp.Kind = kind.String()
	}
	writeJSON(w, status, resp)
}
