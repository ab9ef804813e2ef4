package discord

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func str(name, desc string, required bool) discord.ApplicationCommandOptionString {
	return discord.ApplicationCommandOptionString{Name: name, Description: desc, Required: required}
}

func channel(name, desc string, required bool) discord.ApplicationCommandOptionChannel {
	return discord.ApplicationCommandOptionChannel{
		Name:         name,
		Description:  desc,
		Required:     required,
		ChannelTypes: []discord.ChannelType{discord.ChannelTypeGuildText, discord.ChannelTypeGuildNews},
	}
}

func flag(name, desc string) discord.ApplicationCommandOptionBool {
	return discord.ApplicationCommandOptionBool{Name: name, Description: desc}
}

func sub(name, desc string, opts ...discord.ApplicationCommandOption) discord.ApplicationCommandOptionSubCommand {
	return discord.ApplicationCommandOptionSubCommand{Name: name, Description: desc, Options: opts}
}

// Definitions returns every slash command the bot serves.
func Definitions() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        "track",
			Description: "Track mints and sales of a contract",
			Options: []discord.ApplicationCommandOption{
				sub("add", "Start tracking a contract",
					str("name", "Display name", true),
					str("address", "Contract address", true),
					str("chain", "eth, base, ape, polygon, arbitrum or optimism", true),
					channel("channel", "Alert channel, defaults to this one", false)),
				sub("subscribe", "Send a contract's alerts to another channel",
					str("address", "Contract address", true),
					channel("channel", "Channel to add", true)),
				sub("unsubscribe", "Stop sending a contract's alerts to a channel",
					str("address", "Contract address", true),
					channel("channel", "Channel to remove", true)),
				sub("list", "List tracked contracts"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "digest",
			Description: "Daily activity digest",
			Options: []discord.ApplicationCommandOption{
				sub("setup", "Post a daily digest",
					channel("channel", "Digest channel", true),
					str("timezone", "IANA timezone, e.g. Europe/Berlin", true),
					discord.ApplicationCommandOptionInt{Name: "hour", Description: "Local hour", Required: true, MinValue: intPtr(0), MaxValue: intPtr(23)},
					discord.ApplicationCommandOptionInt{Name: "minute", Description: "Local minute", Required: true, MinValue: intPtr(0), MaxValue: intPtr(59)},
					flag("mints", "Include mint count"),
					flag("sales", "Include sales and volume"),
					flag("top_sale", "Include the top sale"),
					flag("chains", "Include the chain breakdown"),
					flag("recent", "Include recent sales")),
				sub("off", "Stop the daily digest"),
				sub("now", "Post the digest right now",
					discord.ApplicationCommandOptionInt{Name: "hours", Description: "Window in hours", MinValue: intPtr(1), MaxValue: intPtr(168)}),
				sub("status", "Show digest settings"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "stake",
			Description: "Stake NFTs for rewards",
			Options: []discord.ApplicationCommandOption{
				sub("project", "Create a staking project",
					str("name", "Project name", true),
					str("address", "NFT contract address", true),
					str("chain", "Chain of the contract", true),
					str("reward_per_day", "Reward per token per day", true),
					str("symbol", "Reward token symbol", true)),
				sub("link", "Link your wallet", str("wallet", "Wallet address", true)),
				sub("add", "Stake a token", str("address", "NFT contract address", true), str("token_id", "Token id", true)),
				sub("remove", "Unstake a token", str("address", "NFT contract address", true), str("token_id", "Token id", true)),
				sub("rewards", "Show your rewards"),
				sub("claim", "Claim your rewards"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "tier",
			Description: "Server subscription tier",
			Options: []discord.ApplicationCommandOption{
				sub("show", "Show this server's tier"),
				sub("set", "Set this server's tier",
					discord.ApplicationCommandOptionString{
						Name:        "tier",
						Description: "New tier",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "free", Value: "free"},
							{Name: "premium", Value: "premium"},
							{Name: "premium+", Value: "premiumplus"},
						},
					},
					discord.ApplicationCommandOptionInt{Name: "days", Description: "Days until expiry, 0 for never", MinValue: intPtr(0)}),
			},
		},
		discord.SlashCommandCreate{
			Name:        "price",
			Description: "Token price in USD",
			Options:     []discord.ApplicationCommandOption{str("symbol", "Ticker, e.g. ETH", true)},
		},
		discord.SlashCommandCreate{
			Name:        "flex",
			Description: "Show off an NFT",
			Options: []discord.ApplicationCommandOption{
				str("address", "Contract address", true),
				str("token_id", "Token id", true),
				str("chain", "Chain, defaults to eth", false),
			},
		},
		discord.SlashCommandCreate{
			Name:        "ask",
			Description: "Ask the bot anything",
			Options:     []discord.ApplicationCommandOption{str("prompt", "Your question", true)},
		},
	}
}

// Registrar publishes command definitions; disgo's rest client implements it.
type Registrar interface {
	SetGlobalCommands(applicationID snowflake.ID, commands []discord.ApplicationCommandCreate, opts ...rest.RequestOpt) ([]discord.ApplicationCommand, error)
	SetGuildCommands(applicationID snowflake.ID, guildID snowflake.ID, commands []discord.ApplicationCommandCreate, opts ...rest.RequestOpt) ([]discord.ApplicationCommand, error)
}

// SyncCommands overwrites the registered commands with Definitions. A
// non-empty devGuildID registers them to that guild only.
func SyncCommands(r Registrar, applicationID snowflake.ID, devGuildID string, logger *zap.Logger) error {
	cmds := Definitions()
	if devGuildID == "" {
		created, err := r.SetGlobalCommands(applicationID, cmds)
		if err != nil {
			return fmt.Errorf("failed to register global commands: %w", err)
		}
		logger.Info("Registered global commands", zap.Int("count", len(created)))
		return nil
	}

	guildID, err := snowflake.Parse(devGuildID)
	if err != nil {
		return fmt.Errorf("invalid dev guild id %q: %w", devGuildID, err)
	}
	created, err := r.SetGuildCommands(applicationID, guildID, cmds)
	if err != nil {
		return fmt.Errorf("failed to register guild commands: %w", err)
	}
	logger.Info("Registered guild commands",
		zap.String("guild_id", devGuildID),
		zap.Int("count", len(created)))
	return nil
}
