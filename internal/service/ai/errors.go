package ai

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/wingchat/backend/internal/service/inference"
	"github.com/zhouzirui/wingchat/backend/internal/service/prompt"
)

// ErrorStatus maps a flow error to an HTTP status.
func ErrorStatus(err error) int {
	if prompt.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorMessage returns the caller-facing text for a flow error.
func ErrorMessage(err error) string {
	var v *prompt.ValidationError
	if errors.As(err, &v) {
		return v.Error()
	}
	var inf *inference.Error
	if errors.As(err, &inf) {
		return inf.Error()
	}
	return err.Error()
}
