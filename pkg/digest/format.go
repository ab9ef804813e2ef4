package digest

import (
	"fmt"
	"strconv"

	"github.com/chainsafe/mintwatch/pkg/notify"
)

// FormatDigest renders a summary as a single embed, honoring the section
// flags in settings. A nil settings includes every section.
func FormatDigest(sum *Summary, settings *Settings) notify.Payload {
	if settings == nil {
		all := DefaultSettings(sum.GuildID, "")
		settings = &all
	}

	embed := notify.Embed{
		Title:     fmt.Sprintf("Digest: last %dh", sum.WindowHours),
		Color:     notify.ColorDigest,
		Footer:    "mintwatch digest",
		Timestamp: &sum.GeneratedAt,
	}
	if sum.Empty() {
		embed.Description = "No mints or sales in this window."
	}

	if settings.IncludeMints {
		embed.Fields = append(embed.Fields, notify.Field{Name: "Mints", Value: strconv.Itoa(sum.MintCount), Inline: true})
	}
	if settings.IncludeSales {
		embed.Fields = append(embed.Fields,
			notify.Field{Name: "Sales", Value: strconv.Itoa(sum.SaleCount), Inline: true},
			notify.Field{Name: "Volume", Value: sum.VolumeDisplay(), Inline: true},
		)
	}
	embed.Fields = append(embed.Fields, notify.Field{Name: "Most active", Value: sum.TopContractDisplay()})
	if settings.IncludeTopSale {
		embed.Fields = append(embed.Fields, notify.Field{Name: "Top sale", Value: sum.TopSaleDisplay()})
	}
	if settings.IncludeChains {
		embed.Fields = append(embed.Fields, notify.Field{Name: "Chains", Value: sum.ChainsDisplay(), Inline: true})
	}
	if settings.IncludeRecent {
		embed.Fields = append(embed.Fields, notify.Field{Name: "Recent sales", Value: sum.RecentSalesDisplay()})
	}

	return notify.Payload{Embeds: []notify.Embed{embed}}
}
