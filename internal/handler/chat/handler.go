package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/model/chat"
	"github.com/zhouzirui/wingchat/backend/internal/model/evaluation"
	"github.com/zhouzirui/wingchat/backend/internal/service/ai"
	"github.com/zhouzirui/wingchat/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// MsgInvalidBody is returned when the request body is not a JSON object.
const MsgInvalidBody = "請求主體必須是 JSON"

// Flows is the part of ai.Service the handler needs.
type Flows interface {
	GenerateReply(ctx context.Context, req chat.ReplyRequest) (*ai.Reply, error)
	Evaluate(ctx context.Context, req chat.EvaluationRequest) (*ai.Evaluation, error)
	ChatModelName() string
	FeedbackModelName() string
}

// Message is the assistant message of a reply envelope.
type Message struct {
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
}

// ReplyResponse 回复成功时的响应体
type ReplyResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
}

// FeedbackResponse 反馈成功时的响应体
type FeedbackResponse struct {
	Model          string                    `json:"model"`
	CreatedAt      string                    `json:"created_at"`
	UserEvaluation evaluation.UserEvaluation `json:"userEvaluation"`
	RawFeedback    string                    `json:"raw_feedback"`
	Done           bool                      `json:"done"`
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	flows  Flows
	logger *zap.Logger
	now    func() time.Time
}

// New 创建聊天处理器
func New(flows Flows, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		flows:  flows,
		logger: logger.Named("chat"),
		now:    time.Now,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleReply)
	r.Post("/chat_py", h.handleReply)
	r.Post("/feedback", h.handleFeedback)
}

func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request) {
	var req chat.ReplyRequest
	if !decode(w, r, &req) {
		utils.RespondError(w, http.StatusBadRequest, h.flows.ChatModelName(), MsgInvalidBody)
		return
	}
	status, body := h.Reply(r.Context(), req)
	utils.RespondJSON(w, status, body)
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req chat.EvaluationRequest
	if !decode(w, r, &req) {
		utils.RespondError(w, http.StatusBadRequest, h.flows.FeedbackModelName(), MsgInvalidBody)
		return
	}
	status, body := h.Feedback(r.Context(), req)
	utils.RespondJSON(w, status, body)
}

// Reply runs the reply flow and returns the status and envelope to send.
func (h *Handler) Reply(ctx context.Context, req chat.ReplyRequest) (int, any) {
	out, err := h.flows.GenerateReply(ctx, req)
	if err != nil {
		return h.failure("reply", h.flows.ChatModelName(), err)
	}
	return http.StatusOK, ReplyResponse{
		Model:     out.Model,
		CreatedAt: utils.Timestamp(h.now()),
		Message:   Message{Role: chat.RoleAssistant, Content: out.Content},
		Done:      true,
	}
}

// Feedback runs the evaluation flow and returns the status and envelope to send.
func (h *Handler) Feedback(ctx context.Context, req chat.EvaluationRequest) (int, any) {
	out, err := h.flows.Evaluate(ctx, req)
	if err != nil {
		return h.failure("feedback", h.flows.FeedbackModelName(), err)
	}
	return http.StatusOK, FeedbackResponse{
		Model:          out.Model,
		CreatedAt:      utils.Timestamp(h.now()),
		UserEvaluation: out.UserEvaluation,
		RawFeedback:    out.Raw,
		Done:           true,
	}
}

func (h *Handler) failure(flow, model string, err error) (int, any) {
	status := ai.ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("flow failed", zap.String("flow", flow), zap.String("model", model), zap.Error(err))
	} else {
		h.logger.Info("request rejected", zap.String("flow", flow), zap.Error(err))
	}
	return status, utils.ErrorBody{Error: ai.ErrorMessage(err), Done: true, Model: model}
}

// decode reads a single JSON object from the body.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst) == nil
}
