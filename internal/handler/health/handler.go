// Package health reports whether the completion backend is reachable and
// serves the configured models.
package health

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/pkg/utils"
)

const checkTimeout = 5 * time.Second

// ModelLister lists the models installed on the completion backend.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Info is the static part of the health report.
type Info struct {
	Provider      string
	BaseURL       string
	ChatModel     string
	FeedbackModel string
}

// Report is the health response body.
type Report struct {
	Status                 string   `json:"status"`
	Provider               string   `json:"provider"`
	BaseURL                string   `json:"baseUrl"`
	ChatModel              string   `json:"chatModel"`
	FeedbackModel          string   `json:"feedbackModel"`
	ChatModelAvailable     *bool    `json:"chatModelAvailable,omitempty"`
	FeedbackModelAvailable *bool    `json:"feedbackModelAvailable,omitempty"`
	Models                 []string `json:"models,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// Handler serves GET /health.
type Handler struct {
	info   Info
	lister ModelLister
	logger *zap.Logger
}

// New creates the handler. A nil lister skips the upstream model check, which is
// the case for backends without a model listing API.
func New(info Info, lister ModelLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{info: info, lister: lister, logger: logger.Named("health")}
}

// RegisterRoutes 注册健康检查路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := Report{
		Status:        "ok",
		Provider:      h.info.Provider,
		BaseURL:       h.info.BaseURL,
		ChatModel:     h.info.ChatModel,
		FeedbackModel: h.info.FeedbackModel,
	}
	if h.lister == nil {
		utils.RespondJSON(w, http.StatusOK, report)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	models, err := h.lister.ListModels(ctx)
	if err != nil {
		h.logger.Warn("completion backend unreachable", zap.String("base_url", h.info.BaseURL), zap.Error(err))
		report.Status = "unavailable"
		report.Error = err.Error()
		utils.RespondJSON(w, http.StatusServiceUnavailable, report)
		return
	}

	chatOK := hasModel(models, h.info.ChatModel)
	feedbackOK := hasModel(models, h.info.FeedbackModel)
	report.Models = models
	report.ChatModelAvailable = &chatOK
	report.FeedbackModelAvailable = &feedbackOK
	if !chatOK || !feedbackOK {
		report.Status = "degraded"
	}
	utils.RespondJSON(w, http.StatusOK, report)
}

// hasModel matches "name" against installed "name:tag" entries, treating a
// missing tag as ":latest".
func hasModel(installed []string, name string) bool {
	want := withTag(name)
	for _, m := range installed {
		if strings.EqualFold(withTag(m), want) {
			return true
		}
	}
	return false
}

func withTag(name string) string {
	name = strings.TrimSpace(name)
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}
