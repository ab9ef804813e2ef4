package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/market"
	"github.com/chainsafe/mintwatch/pkg/notify"
)

const maxFlexTraits = 6

// PriceSource quotes USD prices; *market.PriceClient implements it.
type PriceSource interface {
	USD(ctx context.Context, symbol string) decimal.Decimal
}

// MetadataSource resolves NFT metadata; *market.MetadataClient implements it.
type MetadataSource interface {
	Token(ctx context.Context, id chain.ID, contract, tokenID string) market.Metadata
}

// NewPrice creates the /price handler.
func NewPrice(prices PriceSource) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		symbol := strings.ToUpper(req.String("symbol"))
		if symbol == "" || len(symbol) > 10 {
			return nil, apperrors.BadRequestError(nil, "Give me a ticker like ETH or APE.")
		}
		usd := prices.USD(ctx, symbol)
		if usd.IsZero() {
			return nil, apperrors.DependencyError(nil, fmt.Sprintf("No price for %s right now.", symbol))
		}
		return Reply(fmt.Sprintf("**%s** is $%s", symbol, usd.StringFixed(2))), nil
	})
}

// NewFlex creates the /flex handler rendering a token card.
func NewFlex(meta MetadataSource) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		addr, err := contractAddress(req.String("address"))
		if err != nil {
			return nil, err
		}
		tokenID := req.String("token_id")
		if tokenID == "" {
			return nil, apperrors.BadRequestError(nil, "Which token id?")
		}
		id, ok := chain.Parse(req.String("chain"))
		if !ok {
			return nil, apperrors.BadRequestError(nil, "Unknown chain.")
		}

		md := meta.Token(ctx, id, addr, tokenID)
		if !md.Known() {
			return nil, apperrors.DependencyError(nil, "I could not load that token's metadata.")
		}

		embed := notify.Embed{
			Title:  md.Name,
			Color:  notify.ColorSale,
			Image:  md.Image,
			Footer: fmt.Sprintf("%s #%s on %s", shortAddr(addr), tokenID, id.DisplayName()),
		}
		if req.UserName != "" {
			embed.Description = req.UserName + " is flexing"
		}
		if md.RarityRank > 0 {
			embed.Fields = append(embed.Fields, notify.Field{Name: "Rarity", Value: fmt.Sprintf("#%d", md.RarityRank), Inline: true})
		}
		for i, tr := range md.Traits {
			if i == maxFlexTraits {
				break
			}
			embed.Fields = append(embed.Fields, notify.Field{Name: tr.Type, Value: tr.Value, Inline: true})
		}
		return &Response{Embeds: []notify.Embed{embed}}, nil
	})
}
