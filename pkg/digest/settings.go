package digest

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Settings is the per-community digest configuration.
type Settings struct {
	GuildID        string `validate:"required"`
	ChannelID      string `validate:"required,numeric"`
	Enabled        bool
	Timezone       string `validate:"required,timezone"`
	Hour           int    `validate:"min=0,max=23"`
	Minute         int    `validate:"min=0,max=59"`
	IncludeMints   bool
	IncludeSales   bool
	IncludeTopSale bool
	IncludeChains  bool
	IncludeRecent  bool
	UpdatedAt      time.Time
}

// DefaultSettings returns an enabled configuration posting at 09:00 UTC with every section included.
func DefaultSettings(guildID, channelID string) Settings {
	return Settings{
		GuildID:        guildID,
		ChannelID:      channelID,
		Enabled:        true,
		Timezone:       "UTC",
		Hour:           9,
		Minute:         0,
		IncludeMints:   true,
		IncludeSales:   true,
		IncludeTopSale: true,
		IncludeChains:  true,
		IncludeRecent:  true,
	}
}

// Validate checks ranges and that the timezone can be loaded.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CronSpec is the five-field crontab firing daily at the local hour:minute.
func (s *Settings) CronSpec() string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", s.Timezone, s.Minute, s.Hour)
}

// LocalTime formats the schedule for display, e.g. "09:30 Europe/Berlin".
func (s *Settings) LocalTime() string {
	return fmt.Sprintf("%02d:%02d %s", s.Hour, s.Minute, s.Timezone)
}
