// Package app assembles the services from a loaded configuration. Both the
// HTTP server and the command line tool start from here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/config"
	"github.com/zhouzirui/wingchat/backend/internal/handler/health"
	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
	"github.com/zhouzirui/wingchat/backend/internal/service/ai"
	"github.com/zhouzirui/wingchat/backend/internal/service/feedback"
	"github.com/zhouzirui/wingchat/backend/internal/service/inference"
	"github.com/zhouzirui/wingchat/backend/internal/service/prompt"
	"github.com/zhouzirui/wingchat/backend/internal/service/reply"
)

// App holds the assembled services.
type App struct {
	Service   *ai.Service
	Personas  persona.Store
	Builder   *prompt.Builder
	Processor *reply.Processor
	Parser    *feedback.Parser
	Health    health.Info

	// Lister is nil when the provider cannot list models.
	Lister health.ModelLister
}

// Build wires prompt templates, the completion backend and the flows.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	templates, err := prompt.LoadTemplates(cfg.Reply.TemplatesFile)
	if err != nil {
		return nil, err
	}
	builder, err := prompt.NewBuilder(templates)
	if err != nil {
		return nil, err
	}

	processor := reply.NewProcessor(reply.WithPolicy(cfg.Reply.Policy), reply.WithBotNames(cfg.Reply.BotName))
	parser := feedback.NewParser(logger.Named("feedback"))
	personas := persona.NewMemoryStore(persona.Seed())

	flows := ai.Config{
		ChatModel:        cfg.Chat.Model,
		ChatEndpoint:     cfg.Chat.Endpoint,
		ChatOptions:      cfg.Chat.Options,
		FeedbackModel:    cfg.Feedback.Model,
		FeedbackEndpoint: cfg.Feedback.Endpoint,
		FeedbackOptions:  cfg.Feedback.Options,
	}

	var (
		completer ai.Completer
		lister    health.ModelLister
		info      = health.Info{Provider: string(cfg.Provider)}
	)
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ark chat model: %w", err)
		}
		completer = inference.NewModelCompleter(chatModel, cfg.AI.Model, cfg.AI.BaseURL, logger.Named("ark"))
		// Ark only speaks chat messages and serves a single model.
		flows.ChatModel, flows.FeedbackModel = cfg.AI.Model, cfg.AI.Model
		flows.ChatEndpoint, flows.FeedbackEndpoint = inference.EndpointChat, inference.EndpointChat
	default:
		client := inference.NewClient(cfg.Ollama.BaseURL,
			inference.WithTimeouts(cfg.Ollama.ConnectTimeout, cfg.Ollama.ReadTimeout),
			inference.WithLogger(logger.Named("ollama")),
		)
		completer = client
		lister = client
	}

	svc, err := ai.NewService(ctx, ai.Deps{
		Completer: completer,
		Builder:   builder,
		Processor: processor,
		Parser:    parser,
		Personas:  personas,
		Logger:    logger,
	}, flows)
	if err != nil {
		return nil, err
	}

	info.BaseURL = svc.BaseURL()
	info.ChatModel = svc.ChatModelName()
	info.FeedbackModel = svc.FeedbackModelName()

	return &App{
		Service:   svc,
		Personas:  personas,
		Builder:   builder,
		Processor: processor,
		Parser:    parser,
		Lister:    lister,
		Health:    info,
	}, nil
}
