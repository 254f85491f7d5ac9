// Package ai wires prompt building, the completion call and output cleaning
// into the two request flows.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/model/chat"
	"github.com/zhouzirui/wingchat/backend/internal/model/evaluation"
	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
	"github.com/zhouzirui/wingchat/backend/internal/service/feedback"
	"github.com/zhouzirui/wingchat/backend/internal/service/inference"
	"github.com/zhouzirui/wingchat/backend/internal/service/prompt"
	"github.com/zhouzirui/wingchat/backend/internal/service/reply"
)

// Completer performs one blocking completion call.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (*inference.Result, error)
	BaseURL() string
}

// Config holds the per-flow model settings.
type Config struct {
	ChatModel        string
	ChatEndpoint     inference.Endpoint
	ChatOptions      inference.Options
	FeedbackModel    string
	FeedbackEndpoint inference.Endpoint
	FeedbackOptions  inference.Options
}

// Deps are the collaborators of a Service.
type Deps struct {
	Completer Completer
	Builder   *prompt.Builder
	Processor *reply.Processor
	Parser    *feedback.Parser
	Personas  persona.Store
	Logger    *zap.Logger
}

// Reply is the cleaned chat message produced by GenerateReply.
type Reply struct {
	Model   string
	Content string
	Raw     string
}

// Evaluation is the parsed rubric answer produced by Evaluate.
type Evaluation struct {
	Model          string
	UserEvaluation evaluation.UserEvaluation
	Raw            string
}

type replyJob struct {
	prompt   *prompt.Prompt
	speakers []string
	failure  error
}

type reviewJob struct {
	prompt  *prompt.Prompt
	failure error
}

type replyCompletion struct {
	job    *replyJob
	result *inference.Result
}

// Service runs the reply and evaluation flows. It is safe for concurrent use.
type Service struct {
	deps      Deps
	cfg       Config
	logger    *zap.Logger
	handler   callbacks.Handler
	replyRun  compose.Runnable[*replyJob, *Reply]
	reviewRun compose.Runnable[*reviewJob, *Evaluation]
}

// NewService compiles the reply and evaluation chains.
func NewService(ctx context.Context, deps Deps, cfg Config) (*Service, error) {
	if deps.Completer == nil || deps.Builder == nil {
		return nil, errors.New("ai: completer and prompt builder are required")
	}
	if deps.Processor == nil {
		deps.Processor = reply.NewProcessor()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Parser == nil {
		deps.Parser = feedback.NewParser(deps.Logger)
	}
	if cfg.ChatEndpoint == "" {
		cfg.ChatEndpoint = inference.EndpointGenerate
	}
	if cfg.FeedbackEndpoint == "" {
		cfg.FeedbackEndpoint = inference.EndpointChat
	}
	if cfg.FeedbackModel == "" {
		cfg.FeedbackModel = cfg.ChatModel
	}
	cfg.ChatOptions = withStops(cfg.ChatEndpoint, cfg.ChatOptions)
	cfg.FeedbackOptions = withStops(cfg.FeedbackEndpoint, cfg.FeedbackOptions)

	s := &Service{
		deps:    deps,
		cfg:     cfg,
		logger:  deps.Logger.Named("ai"),
		handler: newChainLogger(deps.Logger.Named("chain")),
	}

	replyChain := compose.NewChain[*replyJob, *Reply]()
	replyChain.
		AppendLambda(compose.InvokableLambda(s.completeReply), compose.WithNodeName("complete_reply")).
		AppendLambda(compose.InvokableLambda(s.cleanReply), compose.WithNodeName("clean_reply"))
	replyRun, err := replyChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	reviewChain := compose.NewChain[*reviewJob, *Evaluation]()
	reviewChain.
		AppendLambda(compose.InvokableLambda(s.completeFeedback), compose.WithNodeName("complete_feedback")).
		AppendLambda(compose.InvokableLambda(s.parseFeedback), compose.WithNodeName("parse_feedback"))
	reviewRun, err := reviewChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile evaluation chain: %w", err)
	}

	s.replyRun = replyRun
	s.reviewRun = reviewRun
	return s, nil
}

// ChatModelName is the model used for replies.
func (s *Service) ChatModelName() string { return s.cfg.ChatModel }

// FeedbackModelName is the model used for evaluations.
func (s *Service) FeedbackModelName() string { return s.cfg.FeedbackModel }

// BaseURL is the completion service address.
func (s *Service) BaseURL() string { return s.deps.Completer.BaseURL() }

// Personas returns the catalogue used to resolve characterId.
func (s *Service) Personas() persona.Store { return s.deps.Personas }

// GenerateReply builds the reply prompt, calls the model and cleans its output.
// Input errors are returned as *prompt.ValidationError before any upstream call.
func (s *Service) GenerateReply(ctx context.Context, req chat.ReplyRequest) (*Reply, error) {
	character, err := s.resolve(req.Character, req.CharacterID)
	if err != nil {
		return nil, err
	}

	p, err := s.deps.Builder.BuildReply(ctx, prompt.ReplyInput{
		Mode:      req.Mode,
		Goal:      req.Goal,
		History:   req.Messages,
		Character: character,
	})
	if err != nil {
		return nil, err
	}

	job := &replyJob{prompt: p}
	if character != nil {
		job.speakers = append(job.speakers, character.Name)
	}

	out, err := s.replyRun.Invoke(ctx, job, compose.WithCallbacks(s.handler))
	if err != nil {
		return nil, nodeError(job.failure, err)
	}
	return out, nil
}

// Evaluate scores the user's side of the conversation. Parsing never fails;
// only input and upstream errors are returned.
func (s *Service) Evaluate(ctx context.Context, req chat.EvaluationRequest) (*Evaluation, error) {
	character, err := s.resolve(req.Character, req.CharacterID)
	if err != nil {
		return nil, err
	}

	p, err := s.deps.Builder.BuildFeedback(ctx, prompt.FeedbackInput{
		Goal:      req.Goal,
		History:   req.Messages,
		Character: character,
	})
	if err != nil {
		return nil, err
	}

	job := &reviewJob{prompt: p}
	out, err := s.reviewRun.Invoke(ctx, job, compose.WithCallbacks(s.handler))
	if err != nil {
		return nil, nodeError(job.failure, err)
	}
	return out, nil
}

func (s *Service) resolve(inline *persona.Persona, id string) (*persona.Persona, error) {
	character, err := persona.Resolve(s.deps.Personas, inline, id)
	if errors.Is(err, persona.ErrNotFound) {
		return nil, prompt.Invalid("characterId", "unknown character %q", id)
	}
	return character, err
}

func (s *Service) completeReply(ctx context.Context, job *replyJob) (*replyCompletion, error) {
	res, err := s.deps.Completer.Complete(ctx, inference.Request{
		Endpoint: s.cfg.ChatEndpoint,
		Model:    s.cfg.ChatModel,
		Prompt:   job.prompt.Text,
		Messages: job.prompt.Messages,
		Options:  s.cfg.ChatOptions,
		Caller:   "reply",
	})
	if err != nil {
		job.failure = err
		return nil, err
	}
	return &replyCompletion{job: job, result: res}, nil
}

func (s *Service) cleanReply(_ context.Context, in *replyCompletion) (*Reply, error) {
	content := s.deps.Processor.Process(in.result.Text, in.job.speakers...)
	s.logger.Debug("reply cleaned",
		zap.String("raw", in.result.Text),
		zap.String("content", content),
	)
	return &Reply{Model: s.cfg.ChatModel, Content: content, Raw: in.result.Text}, nil
}

func (s *Service) completeFeedback(ctx context.Context, job *reviewJob) (*inference.Result, error) {
	res, err := s.deps.Completer.Complete(ctx, inference.Request{
		Endpoint: s.cfg.FeedbackEndpoint,
		Model:    s.cfg.FeedbackModel,
		Prompt:   job.prompt.Text,
		Messages: job.prompt.Messages,
		Options:  s.cfg.FeedbackOptions,
		Caller:   "feedback",
	})
	if err != nil {
		job.failure = err
		return nil, err
	}
	return res, nil
}

func (s *Service) parseFeedback(_ context.Context, res *inference.Result) (*Evaluation, error) {
	return &Evaluation{
		Model:          s.cfg.FeedbackModel,
		UserEvaluation: s.deps.Parser.Parse(res.Text),
		Raw:            res.Text,
	}, nil
}

// withStops adds the turn-boundary stop sequences raw prompts need.
func withStops(endpoint inference.Endpoint, opts inference.Options) inference.Options {
	if endpoint == inference.EndpointGenerate && len(opts.Stop) == 0 {
		opts.Stop = append([]string(nil), prompt.StopSequences...)
	}
	return opts
}

// nodeError prefers the error a node recorded over the chain's wrapped form.
func nodeError(recorded, chainErr error) error {
	if recorded != nil {
		return recorded
	}
	return chainErr
}
