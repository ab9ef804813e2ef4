package discord

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/command"
	"github.com/chainsafe/mintwatch/pkg/config"
)

const (
	// interactions must be acknowledged within three seconds
	ackAfter       = 2 * time.Second
	handlerTimeout = 2 * time.Minute
)

// Replier answers interactions; *REST implements it.
type Replier interface {
	Respond(ctx context.Context, interactionID snowflake.ID, token string, resp *command.Response) error
	Defer(ctx context.Context, interactionID snowflake.ID, token string, ephemeral bool) error
	EditOriginal(ctx context.Context, token string, resp *command.Response) error
}

// Bot is the gateway connection. It turns slash command interactions into
// command requests and sends back the router's reply.
type Bot struct {
	client  *bot.Client
	rest    *REST
	router  *command.Router
	replier Replier
	logger  *zap.Logger

	ackAfter time.Duration
	base     context.Context
	ready    atomic.Bool
}

// New creates the disgo client. The gateway is not opened until Open.
func New(cfg config.DiscordConfig, router *command.Router, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		router:   router,
		logger:   logger,
		ackAfter: ackAfter,
		base:     context.Background(),
	}

	client, err := disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds)),
		bot.WithEventListenerFunc(b.onReady),
		bot.WithEventListenerFunc(b.onCommand),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	b.client = client
	b.rest = NewREST(client.Rest, client.ApplicationID, cfg.RequestTimeout)
	b.replier = b.rest
	return b, nil
}

// REST returns the adapter used for messages and relay webhooks.
func (b *Bot) REST() *REST {
	return b.rest
}

// ApplicationID returns the bot's application id.
func (b *Bot) ApplicationID() snowflake.ID {
	return b.client.ApplicationID
}

// Registrar returns the client used to publish command definitions.
func (b *Bot) Registrar() Registrar {
	return b.client.Rest
}

// Open connects to the gateway. Handlers run under ctx.
func (b *Bot) Open(ctx context.Context) error {
	b.base = context.WithoutCancel(ctx)
	if err := b.client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close(ctx context.Context) {
	b.ready.Store(false)
	b.client.Close(ctx)
}

// Ready reports whether the gateway session is established.
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

func (b *Bot) onReady(e *events.Ready) {
	b.ready.Store(true)
	b.logger.Info("Discord gateway ready",
		zap.String("user_id", e.User.ID.String()),
		zap.Int("guilds", len(e.Guilds)))
}

func (b *Bot) onCommand(e *events.ApplicationCommandInteractionCreate) {
	data := e.SlashCommandInteractionData()

	in := invocation{
		ChannelID: e.Channel().ID().String(),
		UserID:    e.User().ID.String(),
		UserName:  e.User().Username,
		Command:   data.CommandName(),
		Options:   data.Options,
	}
	if data.SubCommandName != nil {
		in.Subcommand = *data.SubCommandName
	}
	if guildID := e.GuildID(); guildID != nil {
		in.GuildID = guildID.String()
		if guild, ok := e.Client().Caches.Guild(*guildID); ok {
			in.GuildName = guild.Name
		}
	}
	if member := e.Member(); member != nil {
		in.ManageGuild = canManage(member.Permissions)
	}

	req := toRequest(in)
	go b.serve(req, e.ID(), e.Token())
}

// serve runs the command and replies directly when it finishes in time.
// Slower commands are deferred and their reply edited in afterwards.
func (b *Bot) serve(req *command.Request, interactionID snowflake.ID, token string) {
	ctx, cancel := context.WithTimeout(b.base, handlerTimeout)
	defer cancel()

	done := make(chan *command.Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Command handler panicked",
					zap.String("command", req.Name()),
					zap.Any("panic", r))
				done <- command.Private(apperrors.GenericMessage)
			}
		}()
		done <- b.router.Dispatch(ctx, req)
	}()

	timer := time.NewTimer(b.ackAfter)
	defer timer.Stop()

	select {
	case resp := <-done:
		if err := b.replier.Respond(ctx, interactionID, token, resp); err != nil {
			b.logger.Warn("Failed to respond to interaction",
				zap.String("command", req.Name()),
				zap.Error(err))
		}
		return
	case <-timer.C:
	}

	if err := b.replier.Defer(ctx, interactionID, token, false); err != nil {
		b.logger.Warn("Failed to defer interaction",
			zap.String("command", req.Name()),
			zap.Error(err))
	}
	resp := <-done
	if err := b.replier.EditOriginal(ctx, token, resp); err != nil {
		b.logger.Warn("Failed to edit deferred reply",
			zap.String("command", req.Name()),
			zap.Error(err))
	}
}
