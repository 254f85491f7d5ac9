package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
	"github.com/zhouzirui/wingchat/backend/internal/service/ai"
	"github.com/zhouzirui/wingchat/backend/internal/service/inference"
	"github.com/zhouzirui/wingchat/backend/internal/service/prompt"
	"github.com/zhouzirui/wingchat/backend/internal/service/reply"
)

const sampleFeedback = `1. 整體表現總結：
對話自然，有主動延伸話題。

2. 各項評分：
- 表達清晰度 (Clarity)：85 分，理由：句子簡潔。
- 同理心展現 (Empathy)：70 分，理由：有回應對方感受。
- 自信程度 (Confidence)：60 分，理由：偶爾猶豫。
- 言談適當性 (Appropriateness)：90 分，理由：用語禮貌。
- 目標達成技巧 (Goal Achievement)：75 分，理由：大致達成。

3. 優點：
- 主動提問

4. 改進建議：
- 多分享自己的經驗`

type stubCompleter struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *stubCompleter) Complete(_ context.Context, _ inference.Request) (*inference.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &inference.Result{Text: s.text}, nil
}

func (s *stubCompleter) BaseURL() string { return "http://ollama.test:11434" }

func setupRouter(t *testing.T, completer *stubCompleter) *chi.Mux {
	t.Helper()
	builder, err := prompt.NewBuilder(prompt.DefaultTemplates())
	require.NoError(t, err)

	svc, err := ai.NewService(context.Background(), ai.Deps{
		Completer: completer,
		Builder:   builder,
		Processor: reply.NewProcessor(reply.WithBotNames("話翼")),
		Personas:  persona.NewMemoryStore(persona.Seed()),
		Logger:    zap.NewNop(),
	}, ai.Config{ChatModel: "my-custom-llama3"})
	require.NoError(t, err)

	h := New(svc, zap.NewNop())
	h.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestReplyEnvelope(t *testing.T) {
	completer := &stubCompleter{text: "話翼：真的嗎？聽起來很好玩"}
	r := setupRouter(t, completer)

	for _, path := range []string{"/chat", "/chat_py"} {
		rec, out := post(t, r, path, `{"characterId":"default_training_char","messages":[{"role":"user","content":"我週末去露營"}]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "my-custom-llama3", out["model"])
		require.Equal(t, "2024-05-01T08:00:00Z", out["created_at"])
		require.Equal(t, true, out["done"])
		require.Equal(t, map[string]any{"role": "assistant", "content": "真的嗎？聽起來很好玩"}, out["message"])
	}
	require.Equal(t, 2, completer.calls)
}

func TestReplyRejectsMalformedBody(t *testing.T) {
	completer := &stubCompleter{text: "unused"}
	r := setupRouter(t, completer)

	rec, out := post(t, r, "/chat", `{"messages": [`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, MsgInvalidBody, out["error"])
	require.Equal(t, true, out["done"])
	require.Equal(t, "my-custom-llama3", out["model"])
	require.Zero(t, completer.calls)
}

func TestReplyValidationErrors(t *testing.T) {
	cases := map[string]string{
		"unknown mode":         `{"mode":"narrator","character":{"name":"A","description":"B"},"messages":[{"role":"user","content":"hi"}]}`,
		"missing character":    `{"messages":[{"role":"user","content":"hi"}]}`,
		"unknown character id": `{"characterId":"ghost","messages":[{"role":"user","content":"hi"}]}`,
		"assistant no goal":    `{"mode":"assistant","character":{"name":"A","description":"B"},"messages":[{"role":"user","content":"hi"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			completer := &stubCompleter{text: "unused"}
			rec, out := post(t, setupRouter(t, completer), "/chat", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotEmpty(t, out["error"])
			require.Equal(t, true, out["done"])
			require.Zero(t, completer.calls)
		})
	}
}

func TestReplyUpstreamFailure(t *testing.T) {
	completer := &stubCompleter{err: &inference.Error{
		Kind:    inference.KindConnection,
		Model:   "my-custom-llama3",
		BaseURL: "http://ollama.test:11434",
	}}
	rec, out := post(t, setupRouter(t, completer), "/chat", `{"character":{"name":"小美","description":"同事"},"messages":[{"role":"user","content":"早安"}]}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, out["error"], "http://ollama.test:11434")
	require.Equal(t, "my-custom-llama3", out["model"])
}

func TestFeedbackEnvelope(t *testing.T) {
	completer := &stubCompleter{text: sampleFeedback}
	rec, out := post(t, setupRouter(t, completer), "/feedback",
		`{"character":{"name":"HR","description":"嚴謹的面試官"},"goal":"通過面試","messages":[{"role":"user","content":"您好"},{"role":"assistant","content":"請自我介紹"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, sampleFeedback, out["raw_feedback"])
	require.Equal(t, true, out["done"])
	require.Equal(t, "2024-05-01T08:00:00Z", out["created_at"])

	eval, ok := out["userEvaluation"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "對話自然，有主動延伸話題。", eval["summary"])
	scores := eval["scores"].(map[string]any)
	require.EqualValues(t, 85, scores["clarity"].(map[string]any)["score"])
	require.EqualValues(t, 75, scores["goalAchievement"].(map[string]any)["score"])
	require.Equal(t, []any{"主動提問"}, eval["strengths"])
	require.Equal(t, []any{"多分享自己的經驗"}, eval["improvements"])
}

func TestFeedbackValidation(t *testing.T) {
	completer := &stubCompleter{text: sampleFeedback}
	r := setupRouter(t, completer)

	rec, out := post(t, r, "/feedback", `{"character":{"name":"HR","description":"x"},"messages":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.True(t, strings.Contains(out["error"].(string), "messages"))

	rec, _ = post(t, r, "/feedback", `[1,2,3]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, completer.calls)
}
