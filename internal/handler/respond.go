package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	appErr "github.com/samims/tradenotify/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes. Internal errors are logged and never echoed.
func writeError(w http.ResponseWriter, l *slog.Logger, op string, err error) {
	switch {
	case appErr.IsInvalid(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case appErr.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case appErr.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		l.Error(op+" failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErr.NewInvalid("limit must be an integer")
	}
	return n, nil
}
