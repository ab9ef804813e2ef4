package discord

import (
	"encoding/json"
	"math"

	"github.com/disgoorg/disgo/discord"

	"github.com/chainsafe/mintwatch/pkg/command"
)

// invocation is the platform data a command request is built from.
type invocation struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	UserID      string
	UserName    string
	ManageGuild bool
	Command     string
	Subcommand  string
	Options     map[string]discord.SlashCommandOption
}

func toRequest(in invocation) *command.Request {
	req := command.NewRequest(in.Command, in.Subcommand)
	req.GuildID = in.GuildID
	req.GuildName = in.GuildName
	req.ChannelID = in.ChannelID
	req.UserID = in.UserID
	req.UserName = in.UserName
	req.ManageGuild = in.ManageGuild
	for name, opt := range in.Options {
		if v, ok := optionValue(opt.Value); ok {
			req.Options[name] = v
		}
	}
	return req
}

// optionValue decodes an option into string, int64, float64 or bool.
func optionValue(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case string, bool:
		return t, true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t), true
		}
		return t, true
	default:
		return nil, false
	}
}

func canManage(perms discord.Permissions) bool {
	return perms.Has(discord.PermissionManageGuild) || perms.Has(discord.PermissionAdministrator)
}
