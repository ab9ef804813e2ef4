// Package notify delivers chat payloads to channels, either directly or
// through per-channel relay webhooks.
package notify

import "time"

// Colors used by the bot's embeds.
const (
	ColorMint   = 0x2ECC71
	ColorSale   = 0x3498DB
	ColorDigest = 0x9B59B6
	ColorError  = 0xE74C3C
)

// Payload is a platform-agnostic chat message.
type Payload struct {
	Content string
	Embeds  []Embed

	// Username and AvatarURL override the display identity on the relay path.
	Username  string
	AvatarURL string
}

// Embed is a rich message block.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []Field
	Footer      string
	Thumbnail   string
	Image       string
	Timestamp   *time.Time
}

// Field is a name/value row inside an embed.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Empty reports whether there is nothing to send.
func (p Payload) Empty() bool {
	return p.Content == "" && len(p.Embeds) == 0
}
