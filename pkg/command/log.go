package command

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
)

type logHandler struct {
	next   Handler
	logger *zap.Logger
}

// NewLog creates a logging decorator for a command Handler.
func NewLog(next Handler, logger *zap.Logger) Handler {
	return &logHandler{next: next, logger: logger}
}

func (l *logHandler) Handle(ctx context.Context, req *Request) (resp *Response, err error) {
	start := time.Now()
	fields := []zap.Field{
		zap.String("request_id", req.ID.String()),
		zap.String("command", req.Name()),
		zap.String("guild_id", req.GuildID),
		zap.String("user_id", req.UserID),
	}

	l.logger.Debug("Command started", fields...)

	defer func() {
		fields = append(fields, zap.Duration("duration", time.Since(start)))
		switch {
		case err == nil:
			l.logger.Info("Command completed", fields...)
		case apperrors.IsInternalError(err):
			l.logger.Error("Command failed", append(fields, zap.Error(err))...)
		default:
			l.logger.Info("Command rejected", append(fields, zap.String("reason", apperrors.UserMessage(err)))...)
		}
	}()

	return l.next.Handle(ctx, req)
}
