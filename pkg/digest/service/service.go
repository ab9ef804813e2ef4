// Package service exposes digest operations to operators over HTTP.
package service

import (
	"context"
	"errors"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/digest"
	"github.com/chainsafe/mintwatch/pkg/scheduler"
)

const maxWindowHours = 24 * 30

// Service is the operator-facing digest API.
type Service interface {
	Summary(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error)
	Run(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error)
	Ingest(ctx context.Context, fields map[string]any) (bool, error)
}

// Summarizer rolls up a community's digest window.
type Summarizer interface {
	Summarize(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error)
}

// Runner delivers a digest immediately.
type Runner interface {
	RunWindow(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error)
}

type digestService struct {
	events     digest.EventStore
	summarizer Summarizer
	runner     Runner
}

// NewService creates the digest Service.
func NewService(events digest.EventStore, summarizer Summarizer, runner Runner) Service {
	return &digestService{
		events:     events,
		summarizer: summarizer,
		runner:     runner,
	}
}

func (s *digestService) Summary(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error) {
	if err := checkWindow(windowHours); err != nil {
		return nil, err
	}
	sum, err := s.summarizer.Summarize(ctx, guildID, windowHours)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return sum, nil
}

func (s *digestService) Run(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error) {
	if err := checkWindow(windowHours); err != nil {
		return nil, err
	}
	sum, err := s.runner.RunWindow(ctx, guildID, windowHours)
	switch {
	case err == nil:
		return sum, nil
	case errors.Is(err, digest.ErrSettingsNotFound):
		return nil, apperrors.ResourceNotFoundError(err, "digest is not set up for this guild")
	case errors.Is(err, scheduler.ErrDeliveryFailed):
		return nil, apperrors.DependencyError(err, "digest could not be delivered")
	default:
		return nil, apperrors.GeneralError(err)
	}
}

func (s *digestService) Ingest(ctx context.Context, fields map[string]any) (bool, error) {
	inserted, err := s.events.Record(ctx, digest.FromFields(fields))
	if err != nil {
		return false, apperrors.GeneralError(err)
	}
	return inserted, nil
}

func checkWindow(hours int) error {
	if hours < 0 || hours > maxWindowHours {
		return apperrors.BadRequestError(nil, "hours must be between 1 and 720")
	}
	return nil
}
