package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/chainsafe/mintwatch/pkg/digest"
	"github.com/chainsafe/mintwatch/pkg/ethereum"
	"github.com/chainsafe/mintwatch/pkg/notify"
)

// tokenDecimals is the unit scale assumed for every payment amount.
const tokenDecimals = 18

// ToRecord converts a decoded event into a digest fact for the contract's
// community. usd is consulted only for payments settled in the wrapped
// native token or the zero address, with the chain's native symbol; a zero
// price leaves USD empty. Only ETH-native chains fill AmountETH.
func ToRecord(c *Contract, evt ethereum.Event, wrappedNative common.Address, usd func(symbol string) decimal.Decimal, now time.Time) digest.RecordInput {
	meta := evt.Metadata()
	in := digest.RecordInput{
		GuildID:   c.GuildID,
		Chain:     string(meta.Chain),
		Contract:  strings.ToLower(meta.Contract.Hex()),
		TxHash:    strings.ToLower(meta.TxHash.Hex()),
		Timestamp: now,
	}

	switch e := evt.(type) {
	case *ethereum.MintEvent:
		in.Kind = string(digest.KindMint)
		in.Buyer = strings.ToLower(e.To.Hex())
		if e.TokenID != nil {
			in.TokenID = e.TokenID.String()
		}

	case *ethereum.PaymentEvent:
		in.Kind = string(digest.KindSale)
		in.Buyer = strings.ToLower(e.From.Hex())
		in.Seller = strings.ToLower(e.To.Hex())
		if e.Amount == nil {
			break
		}
		amount := decimal.NewFromBigInt(e.Amount, -tokenDecimals)
		native := e.Token == wrappedNative || e.Token == (common.Address{})
		symbol := meta.Chain.NativeSymbol()
		if native && symbol == "ETH" {
			in.AmountETH = &amount
		} else {
			in.AmountNative = &amount
		}
		if !native {
			break
		}
		if price := usd(symbol); price.IsPositive() {
			v := amount.Mul(price).Round(2)
			in.AmountUSD = &v
		}
	}
	return in
}

// FormatAlert renders the channel alert for a freshly recorded event.
func FormatAlert(c *Contract, in digest.RecordInput, explorerURL string) notify.Payload {
	embed := notify.Embed{
		Footer: c.Chain.DisplayName(),
	}
	ts := in.Timestamp
	if !ts.IsZero() {
		embed.Timestamp = &ts
	}
	if explorerURL != "" && in.TxHash != "" {
		embed.URL = strings.TrimRight(explorerURL, "/") + "/tx/" + in.TxHash
	}

	switch digest.Kind(in.Kind) {
	case digest.KindMint:
		embed.Title = fmt.Sprintf("New mint: %s", c.Name)
		embed.Color = notify.ColorMint
		if in.TokenID != "" {
			embed.Fields = append(embed.Fields, notify.Field{Name: "Token", Value: "#" + in.TokenID, Inline: true})
		}
		embed.Fields = append(embed.Fields, notify.Field{Name: "Minter", Value: "`" + digest.ShortAddress(in.Buyer) + "`", Inline: true})
	default:
		embed.Title = fmt.Sprintf("New sale: %s", c.Name)
		embed.Color = notify.ColorSale
		embed.Fields = append(embed.Fields,
			notify.Field{Name: "Price", Value: priceText(in, c.Chain.NativeSymbol()), Inline: true},
			notify.Field{Name: "Buyer", Value: "`" + digest.ShortAddress(in.Buyer) + "`", Inline: true},
			notify.Field{Name: "Seller", Value: "`" + digest.ShortAddress(in.Seller) + "`", Inline: true},
		)
	}
	return notify.Payload{Username: c.Name, Embeds: []notify.Embed{embed}}
}

// priceText labels a native amount with the chain's symbol; only native
// payments carry USD.
func priceText(in digest.RecordInput, nativeSymbol string) string {
	withUSD := func(out string) string {
		if in.AmountUSD != nil {
			out += " (~$" + in.AmountUSD.StringFixed(2) + ")"
		}
		return out
	}
	switch {
	case in.AmountETH != nil:
		return withUSD(in.AmountETH.StringFixed(4) + " ETH")
	case in.AmountNative != nil && in.AmountUSD != nil:
		return withUSD(in.AmountNative.StringFixed(4) + " " + nativeSymbol)
	case in.AmountNative != nil:
		return in.AmountNative.StringFixed(4) + " tokens"
	default:
		return digest.NotAvailable
	}
}
