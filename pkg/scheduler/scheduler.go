// Package scheduler arms one daily digest job per community.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/internal/metrics"
	"github.com/chainsafe/mintwatch/pkg/digest"
	"github.com/chainsafe/mintwatch/pkg/notify"
)

// State is a community's position in the digest lifecycle.
type State string

const (
	Unscheduled State = "unscheduled"
	Armed       State = "armed"
	Fired       State = "fired"
	Disabled    State = "disabled"
)

const (
	triggerScheduled = "scheduled"
	triggerManual    = "manual"
	runTimeout       = 2 * time.Minute
)

// ErrDeliveryFailed is returned when a digest reached no channel.
var ErrDeliveryFailed = errors.New("digest delivery failed")

// Summarizer produces a digest summary for a community.
type Summarizer interface {
	Summarize(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error)
}

// Dispatcher delivers payloads to channels.
type Dispatcher interface {
	Send(ctx context.Context, channelIDs []string, p notify.Payload) notify.Report
}

// Scheduler owns the gocron jobs of every community's daily digest.
type Scheduler struct {
	mu     sync.Mutex
	cron   gocron.Scheduler
	jobs   map[string]uuid.UUID
	states map[string]State

	settings   digest.SettingsStore
	summarizer Summarizer
	dispatcher Dispatcher
	logger     *zap.Logger

	// base is the context scheduled runs derive from; set by Start.
	base context.Context
}

// New creates a scheduler. Jobs are armed by Start and RescheduleGuild.
func New(settings digest.SettingsStore, summarizer Summarizer, dispatcher Dispatcher, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		cron:       cron,
		jobs:       make(map[string]uuid.UUID),
		states:     make(map[string]State),
		settings:   settings,
		summarizer: summarizer,
		dispatcher: dispatcher,
		logger:     logger,
		base:       context.Background(),
	}, nil
}

// Start arms every enabled community and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	all, err := s.settings.ListEnabledSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load digest settings: %w", err)
	}

	s.mu.Lock()
	s.base = context.WithoutCancel(ctx)
	for i := range all {
		if err := s.arm(&all[i]); err != nil {
			s.logger.Error("Failed to arm digest",
				zap.String("guild_id", all[i].GuildID),
				zap.Error(err))
		}
	}
	armed := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Digest scheduler started", zap.Int("armed", armed))
	return nil
}

// Stop shuts the cron loop down and waits for running digests.
func (s *Scheduler) Stop() {
	if err := s.cron.Shutdown(); err != nil {
		s.logger.Warn("Failed to shutdown scheduler", zap.Error(err))
	}
	s.logger.Info("Digest scheduler stopped")
}

// RescheduleGuild replaces the community's job with one matching its current
// settings. Calling it repeatedly leaves at most one job.
func (s *Scheduler) RescheduleGuild(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarm(guildID)

	settings, err := s.settings.GetSettings(ctx, guildID)
	if errors.Is(err, digest.ErrSettingsNotFound) {
		s.states[guildID] = Unscheduled
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load digest settings: %w", err)
	}
	if !settings.Enabled {
		s.states[guildID] = Disabled
		s.logger.Info("Digest disabled", zap.String("guild_id", guildID))
		return nil
	}
	return s.arm(settings)
}

// arm registers the job for settings. Callers hold mu.
func (s *Scheduler) arm(settings *digest.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	guildID := settings.GuildID

	job, err := s.cron.NewJob(
		gocron.CronJob(settings.CronSpec(), false),
		gocron.NewTask(s.fire, guildID),
		gocron.WithName("digest:"+guildID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule digest: %w", err)
	}

	s.jobs[guildID] = job.ID()
	s.states[guildID] = Armed
	metrics.ArmedDigests.Set(float64(len(s.jobs)))
	s.logger.Info("Digest armed",
		zap.String("guild_id", guildID),
		zap.String("at", settings.LocalTime()))
	return nil
}

// disarm removes the community's job if one exists. Callers hold mu.
func (s *Scheduler) disarm(guildID string) {
	id, ok := s.jobs[guildID]
	if !ok {
		return
	}
	if err := s.cron.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.logger.Warn("Failed to remove digest job",
			zap.String("guild_id", guildID),
			zap.Error(err))
	}
	delete(s.jobs, guildID)
	metrics.ArmedDigests.Set(float64(len(s.jobs)))
}

func (s *Scheduler) fire(guildID string) {
	s.mu.Lock()
	if s.states[guildID] != Armed {
		s.mu.Unlock()
		return
	}
	s.states[guildID] = Fired
	base := s.base
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, runTimeout)
	defer cancel()

	if _, err := s.run(ctx, guildID, 0, triggerScheduled); err != nil {
		s.logger.Error("Scheduled digest failed",
			zap.String("guild_id", guildID),
			zap.Error(err))
	}

	// the cron job stays registered, so it is armed for tomorrow
	s.mu.Lock()
	if s.states[guildID] == Fired {
		s.states[guildID] = Armed
	}
	s.mu.Unlock()
}

// RunNow builds and delivers the community's digest immediately.
func (s *Scheduler) RunNow(ctx context.Context, guildID string) (*digest.Summary, error) {
	return s.run(ctx, guildID, 0, triggerManual)
}

// RunWindow is RunNow over a custom trailing window.
func (s *Scheduler) RunWindow(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error) {
	return s.run(ctx, guildID, windowHours, triggerManual)
}

func (s *Scheduler) run(ctx context.Context, guildID string, windowHours int, trigger string) (*digest.Summary, error) {
	settings, err := s.settings.GetSettings(ctx, guildID)
	if err != nil {
		metrics.DigestsSent.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}

	sum, err := s.summarizer.Summarize(ctx, guildID, windowHours)
	if err != nil {
		metrics.DigestsSent.WithLabelValues(trigger, "error").Inc()
		return nil, fmt.Errorf("failed to summarize digest: %w", err)
	}

	report := s.dispatcher.Send(ctx, []string{settings.ChannelID}, digest.FormatDigest(sum, settings))
	if report.Delivered == 0 {
		metrics.DigestsSent.WithLabelValues(trigger, "failed").Inc()
		return sum, ErrDeliveryFailed
	}

	metrics.DigestsSent.WithLabelValues(trigger, "sent").Inc()
	s.logger.Info("Digest sent",
		zap.String("guild_id", guildID),
		zap.String("trigger", trigger),
		zap.Int("mints", sum.MintCount),
		zap.Int("sales", sum.SaleCount))
	return sum, nil
}

// State returns the community's lifecycle state.
func (s *Scheduler) State(guildID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[guildID]; ok {
		return st
	}
	return Unscheduled
}

// Jobs returns the number of armed digest jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// NextRun returns when the community's digest fires next.
func (s *Scheduler) NextRun(guildID string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[guildID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	for _, job := range s.cron.Jobs() {
		if job.ID() != id {
			continue
		}
		next, err := job.NextRun()
		if err != nil {
			return time.Time{}, false
		}
		return next, true
	}
	return time.Time{}, false
}
