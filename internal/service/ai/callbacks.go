package ai

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"go.uber.org/zap"
)

// newChainLogger reports chain node activity to zap.
func newChainLogger(logger *zap.Logger) callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
			logger.Debug("node start", runFields(info)...)
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackOutput) context.Context {
			logger.Debug("node end", runFields(info)...)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			logger.Warn("node failed", append(runFields(info), zap.Error(err))...)
			return ctx
		}).
		Build()
}

func runFields(info *callbacks.RunInfo) []zap.Field {
	if info == nil {
		return nil
	}
	return []zap.Field{
		zap.String("node", info.Name),
		zap.String("type", info.Type),
		zap.String("component", string(info.Component)),
	}
}
