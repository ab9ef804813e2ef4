package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/pkg/digest"
)

const serviceName = "DigestService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the digest Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Summary(ctx context.Context, guildID string, windowHours int) (sum *digest.Summary, err error) {
	defer ls.done("Summary", time.Now(), &err, zap.String("guild_id", guildID), zap.Int("hours", windowHours))
	return ls.svc.Summary(ctx, guildID, windowHours)
}

func (ls *logService) Run(ctx context.Context, guildID string, windowHours int) (sum *digest.Summary, err error) {
	ls.logger.Info("Run started",
		zap.String("service", serviceName),
		zap.String("guild_id", guildID))
	defer ls.done("Run", time.Now(), &err, zap.String("guild_id", guildID), zap.Int("hours", windowHours))
	return ls.svc.Run(ctx, guildID, windowHours)
}

func (ls *logService) Ingest(ctx context.Context, fields map[string]any) (inserted bool, err error) {
	defer func() {
		if err == nil {
			ls.logger.Debug("Ingest result",
				zap.String("service", serviceName),
				zap.Bool("inserted", inserted))
		}
	}()
	defer ls.done("Ingest", time.Now(), &err, zap.Int("fields", len(fields)))
	return ls.svc.Ingest(ctx, fields)
}

func (ls *logService) done(method string, start time.Time, err *error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)))
	if *err != nil {
		ls.logger.Error(method+" failed", append(fields, zap.Error(*err))...)
		return
	}
	ls.logger.Info(method+" completed", fields...)
}
