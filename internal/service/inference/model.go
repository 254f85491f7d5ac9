package inference

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ModelCompleter serves completion requests from an eino chat model, such as
// the Ark model built by the config package. Requests always go through the
// model's chat interface; a bare Prompt becomes a single user message.
type ModelCompleter struct {
	model  model.BaseChatModel
	name   string
	target string
	logger *zap.Logger
}

// NewModelCompleter wraps m. name and target only label errors and logs.
func NewModelCompleter(m model.BaseChatModel, name, target string, logger *zap.Logger) *ModelCompleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelCompleter{model: m, name: name, target: target, logger: logger}
}

// BaseURL returns the provider address used in error messages.
func (c *ModelCompleter) BaseURL() string {
	return c.target
}

// Complete runs one Generate call. Stop sequences and repeat penalty are raw
// prompt controls and are not forwarded.
func (c *ModelCompleter) Complete(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	messages := req.Messages
	if len(messages) == 0 && strings.TrimSpace(req.Prompt) != "" {
		messages = []*schema.Message{schema.UserMessage(req.Prompt)}
	}
	if len(messages) == 0 {
		return nil, c.fail(req, KindUnknown, errors.New("no prompt or messages supplied"))
	}

	msg, err := c.model.Generate(ctx, messages, callOptions(req.Options)...)
	if err != nil {
		return nil, c.fail(req, classifyModelError(err), err)
	}
	if msg == nil {
		return nil, c.fail(req, KindService, errors.New("model returned no message"))
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		raw = nil
	}
	text := strings.TrimSpace(msg.Content)
	c.logger.Debug("completion received",
		zap.String("caller", req.Caller),
		zap.String("model", c.modelName(req)),
		zap.String("text", text),
	)
	return &Result{Text: text, Raw: raw, Response: msg}, nil
}

func callOptions(o Options) []model.Option {
	var opts []model.Option
	if o.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(o.Temperature)))
	}
	if o.TopP > 0 {
		opts = append(opts, model.WithTopP(float32(o.TopP)))
	}
	if o.NumPredict > 0 {
		opts = append(opts, model.WithMaxTokens(o.NumPredict))
	}
	return opts
}

func classifyModelError(err error) Kind {
	if kind := classifyTransport(err); kind != KindUnknown {
		return kind
	}
	if mentionsMissingModel(err.Error()) {
		return KindModelNotFound
	}
	return KindUnknown
}

func (c *ModelCompleter) modelName(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.name
}

func (c *ModelCompleter) fail(req Request, kind Kind, err error) *Error {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	c.logger.Error("model completion failed",
		zap.String("caller", req.Caller),
		zap.String("kind", string(kind)),
		zap.String("model", c.modelName(req)),
		zap.Error(err),
	)
	return &Error{Kind: kind, Model: c.modelName(req), BaseURL: c.target, Caller: req.Caller, Detail: detail, Err: err}
}
