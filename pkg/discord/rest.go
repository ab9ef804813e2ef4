// Package discord connects the command router and the notifier to Discord
// through disgo.
package discord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/chainsafe/mintwatch/pkg/command"
	"github.com/chainsafe/mintwatch/pkg/notify"
)

var (
	createMessage   = rest.NewEndpoint(http.MethodPost, "/channels/{channel.id}/messages")
	createWebhook   = rest.NewEndpoint(http.MethodPost, "/channels/{channel.id}/webhooks")
	executeWebhook  = rest.NewEndpoint(http.MethodPost, "/webhooks/{webhook.id}/{webhook.token}")
	interactionResp = rest.NewEndpoint(http.MethodPost, "/interactions/{interaction.id}/{interaction.token}/callback")
	editOriginal    = rest.NewEndpoint(http.MethodPatch, "/webhooks/{application.id}/{interaction.token}/messages/@original")
)

// Doer performs a compiled REST call; disgo's rest client implements it.
type Doer interface {
	Do(endpoint *rest.CompiledEndpoint, rqBody any, rsBody any, opts ...rest.RequestOpt) error
}

// REST sends channel messages, relay webhooks and interaction replies.
type REST struct {
	doer          Doer
	applicationID snowflake.ID
	timeout       time.Duration
}

// NewREST creates the REST adapter. timeout bounds every call.
func NewREST(doer Doer, applicationID snowflake.ID, timeout time.Duration) *REST {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &REST{doer: doer, applicationID: applicationID, timeout: timeout}
}

type messageBody struct {
	Content   string               `json:"content,omitempty"`
	Embeds    []discord.Embed      `json:"embeds,omitempty"`
	Flags     discord.MessageFlags `json:"flags,omitempty"`
	Username  string               `json:"username,omitempty"`
	AvatarURL string               `json:"avatar_url,omitempty"`
}

type interactionBody struct {
	Type discord.InteractionResponseType `json:"type"`
	Data *messageBody                    `json:"data,omitempty"`
}

type webhookBody struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

func (r *REST) do(ctx context.Context, endpoint *rest.CompiledEndpoint, body, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.doer.Do(endpoint, body, dst, rest.WithCtx(ctx))
}

// SendMessage posts p to the channel as the bot.
func (r *REST) SendMessage(ctx context.Context, channelID string, p notify.Payload) error {
	id, err := snowflake.Parse(channelID)
	if err != nil {
		return fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}
	body := &messageBody{Content: p.Content, Embeds: toEmbeds(p.Embeds)}
	if err := r.do(ctx, createMessage.Compile(nil, id.String()), body, nil); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return nil
}

// CreateWebhook creates a relay webhook in the channel.
func (r *REST) CreateWebhook(ctx context.Context, channelID, name string) (notify.Webhook, error) {
	id, err := snowflake.Parse(channelID)
	if err != nil {
		return notify.Webhook{}, fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}
	var out webhookBody
	err = r.do(ctx, createWebhook.Compile(nil, id.String()), map[string]string{"name": name}, &out)
	if err != nil {
		return notify.Webhook{}, fmt.Errorf("failed to create webhook in %s: %w", channelID, err)
	}
	if out.ID == "" || out.Token == "" {
		return notify.Webhook{}, fmt.Errorf("webhook in %s came back without credentials", channelID)
	}
	return notify.Webhook{ID: out.ID, Token: out.Token, ChannelID: channelID}, nil
}

// ExecuteWebhook posts p through hook and waits for Discord to accept it.
func (r *REST) ExecuteWebhook(ctx context.Context, hook notify.Webhook, p notify.Payload) error {
	body := &messageBody{
		Content:   p.Content,
		Embeds:    toEmbeds(p.Embeds),
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
	}
	endpoint := executeWebhook.Compile(discord.QueryValues{"wait": true}, hook.ID, hook.Token)
	if err := r.do(ctx, endpoint, body, nil); err != nil {
		return fmt.Errorf("failed to execute webhook %s: %w", hook.ID, err)
	}
	return nil
}

// Respond answers an interaction with a message.
func (r *REST) Respond(ctx context.Context, interactionID snowflake.ID, token string, resp *command.Response) error {
	body := &interactionBody{
		Type: discord.InteractionResponseTypeCreateMessage,
		Data: toMessage(resp),
	}
	return r.do(ctx, interactionResp.Compile(nil, interactionID.String(), token), body, nil)
}

// Defer acknowledges an interaction whose reply follows through EditOriginal.
func (r *REST) Defer(ctx context.Context, interactionID snowflake.ID, token string, ephemeral bool) error {
	body := &interactionBody{Type: discord.InteractionResponseTypeDeferredCreateMessage}
	if ephemeral {
		body.Data = &messageBody{Flags: discord.MessageFlagEphemeral}
	}
	return r.do(ctx, interactionResp.Compile(nil, interactionID.String(), token), body, nil)
}

// EditOriginal replaces a deferred interaction reply.
func (r *REST) EditOriginal(ctx context.Context, token string, resp *command.Response) error {
	body := toMessage(resp)
	body.Flags = 0
	return r.do(ctx, editOriginal.Compile(nil, r.applicationID.String(), token), body, nil)
}

func toMessage(resp *command.Response) *messageBody {
	body := &messageBody{Content: resp.Content, Embeds: toEmbeds(resp.Embeds)}
	if resp.Ephemeral {
		body.Flags = discord.MessageFlagEphemeral
	}
	return body
}

func toEmbeds(in []notify.Embed) []discord.Embed {
	if len(in) == 0 {
		return nil
	}
	out := make([]discord.Embed, len(in))
	for i, e := range in {
		embed := discord.Embed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
			Timestamp:   e.Timestamp,
		}
		for _, f := range e.Fields {
			inline := f.Inline
			embed.Fields = append(embed.Fields, discord.EmbedField{Name: f.Name, Value: f.Value, Inline: &inline})
		}
		if e.Footer != "" {
			embed.Footer = &discord.EmbedFooter{Text: e.Footer}
		}
		if e.Thumbnail != "" {
			embed.Thumbnail = &discord.EmbedResource{URL: e.Thumbnail}
		}
		if e.Image != "" {
			embed.Image = &discord.EmbedResource{URL: e.Image}
		}
		out[i] = embed
	}
	return out
}
