package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// ErrorBody is the error envelope shared by every endpoint.
type ErrorBody struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
	Model string `json:"model,omitempty"`
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, model, message string) {
	RespondJSON(w, status, ErrorBody{Error: message, Done: true, Model: model})
}

// Timestamp formats t the way responses report created_at.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
