package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/digest"
	"github.com/chainsafe/mintwatch/pkg/notify"
	"github.com/chainsafe/mintwatch/pkg/scheduler"
)

const maxManualWindowHours = 168

// DigestScheduler is the part of the scheduler the /digest command drives.
type DigestScheduler interface {
	RescheduleGuild(ctx context.Context, guildID string) error
	RunWindow(ctx context.Context, guildID string, windowHours int) (*digest.Summary, error)
	State(guildID string) scheduler.State
	NextRun(guildID string) (time.Time, bool)
}

// Digest configures and triggers the daily digest.
type Digest struct {
	settings  digest.SettingsStore
	scheduler DigestScheduler
}

// NewDigest creates the /digest handler.
func NewDigest(settings digest.SettingsStore, s DigestScheduler) *Digest {
	return &Digest{settings: settings, scheduler: s}
}

func (d *Digest) Handle(ctx context.Context, req *Request) (*Response, error) {
	if err := requireGuild(req); err != nil {
		return nil, err
	}
	switch req.Subcommand {
	case "setup":
		return d.setup(ctx, req)
	case "off":
		return d.off(ctx, req)
	case "now":
		return d.now(ctx, req)
	case "status":
		return d.status(ctx, req)
	default:
		return nil, unknownSubcommand(req)
	}
}

func (d *Digest) setup(ctx context.Context, req *Request) (*Response, error) {
	if err := requireManager(req); err != nil {
		return nil, err
	}

	s := digest.DefaultSettings(req.GuildID, req.String("channel"))
	if s.ChannelID == "" {
		s.ChannelID = req.ChannelID
	}
	if tz := req.String("timezone"); tz != "" {
		s.Timezone = tz
	}
	if h, ok := req.Int("hour"); ok {
		s.Hour = h
	}
	if m, ok := req.Int("minute"); ok {
		s.Minute = m
	}
	s.IncludeMints = req.Bool("mints", true)
	s.IncludeSales = req.Bool("sales", true)
	s.IncludeTopSale = req.Bool("top_sale", true)
	s.IncludeChains = req.Bool("chains", true)
	s.IncludeRecent = req.Bool("recent", true)

	if err := s.Validate(); err != nil {
		return nil, apperrors.BadRequestError(err, "Check the hour (0-23), minute (0-59) and timezone (e.g. Europe/Berlin).")
	}
	if err := d.settings.UpsertSettings(ctx, &s); err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if err := d.scheduler.RescheduleGuild(ctx, req.GuildID); err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return Reply(fmt.Sprintf("Daily digest will post in <#%s> at %s.", s.ChannelID, s.LocalTime())), nil
}

func (d *Digest) off(ctx context.Context, req *Request) (*Response, error) {
	if err := requireManager(req); err != nil {
		return nil, err
	}
	err := d.settings.DisableSettings(ctx, req.GuildID)
	if errors.Is(err, digest.ErrSettingsNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "The digest is not set up. Use `/digest setup`.")
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if err := d.scheduler.RescheduleGuild(ctx, req.GuildID); err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return Reply("Daily digest turned off. Your settings are kept."), nil
}

func (d *Digest) now(ctx context.Context, req *Request) (*Response, error) {
	if err := requireManager(req); err != nil {
		return nil, err
	}
	hours, ok := req.Int("hours")
	if !ok {
		hours = 0
	} else if hours < 1 || hours > maxManualWindowHours {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("Hours must be between 1 and %d.", maxManualWindowHours))
	}

	sum, err := d.scheduler.RunWindow(ctx, req.GuildID, hours)
	switch {
	case errors.Is(err, digest.ErrSettingsNotFound):
		return nil, apperrors.ResourceNotFoundError(err, "The digest is not set up. Use `/digest setup`.")
	case errors.Is(err, scheduler.ErrDeliveryFailed):
		return nil, apperrors.DependencyError(err, "I could not post in the digest channel. Check my permissions there.")
	case err != nil:
		return nil, apperrors.GeneralError(err)
	}
	return Private(fmt.Sprintf("Digest posted: %d mints and %d sales in the last %dh.", sum.MintCount, sum.SaleCount, sum.WindowHours)), nil
}

func (d *Digest) status(ctx context.Context, req *Request) (*Response, error) {
	s, err := d.settings.GetSettings(ctx, req.GuildID)
	if errors.Is(err, digest.ErrSettingsNotFound) {
		return Private("The digest is not set up. Use `/digest setup`."), nil
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	embed := notify.Embed{
		Title: "Digest status",
		Color: notify.ColorDigest,
		Fields: []notify.Field{
			{Name: "State", Value: string(d.scheduler.State(req.GuildID)), Inline: true},
			{Name: "Channel", Value: "<#" + s.ChannelID + ">", Inline: true},
			{Name: "Time", Value: s.LocalTime(), Inline: true},
		},
	}
	if next, ok := d.scheduler.NextRun(req.GuildID); ok {
		embed.Fields = append(embed.Fields, notify.Field{
			Name:  "Next post",
			Value: fmt.Sprintf("<t:%d:R>", next.Unix()),
		})
	}
	return &Response{Embeds: []notify.Embed{embed}, Ephemeral: true}, nil
}
