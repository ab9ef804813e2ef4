package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

const (
	maxChains      = 6
	maxRecentSales = 5

	// NotAvailable is shown in place of absent summary data.
	NotAvailable = "N/A"
)

// ContractCount is the number of events seen for one contract.
type ContractCount struct {
	Contract string
	Chain    chain.ID
	Count    int
}

// ChainCount is the number of events seen on one chain.
type ChainCount struct {
	Chain chain.ID
	Count int
}

// Summary is the roll-up of a community's events over a trailing window.
type Summary struct {
	GuildID     string
	WindowHours int
	GeneratedAt time.Time

	MintCount   int
	SaleCount   int
	TotalETH    decimal.Decimal
	TotalUSD    decimal.Decimal
	TopContract *ContractCount
	TopSale     *Event
	Chains      []ChainCount
	RecentSales []string
}

// Empty reports whether the window held no events.
func (s *Summary) Empty() bool {
	return s.MintCount == 0 && s.SaleCount == 0
}

// TopContractDisplay renders the most active contract or N/A.
func (s *Summary) TopContractDisplay() string {
	if s.TopContract == nil {
		return NotAvailable
	}
	return fmt.Sprintf("`%s` on %s (%d events)",
		ShortAddress(s.TopContract.Contract), s.TopContract.Chain.DisplayName(), s.TopContract.Count)
}

// TopSaleDisplay renders the largest sale or N/A.
func (s *Summary) TopSaleDisplay() string {
	if s.TopSale == nil {
		return NotAvailable
	}
	return saleLine(s.TopSale)
}

// ChainsDisplay renders the per-chain activity or N/A.
func (s *Summary) ChainsDisplay() string {
	if len(s.Chains) == 0 {
		return NotAvailable
	}
	parts := make([]string, len(s.Chains))
	for i, c := range s.Chains {
		parts[i] = fmt.Sprintf("%s: %d", c.Chain.DisplayName(), c.Count)
	}
	return strings.Join(parts, "\n")
}

// RecentSalesDisplay renders the newest sales or N/A.
func (s *Summary) RecentSalesDisplay() string {
	if len(s.RecentSales) == 0 {
		return NotAvailable
	}
	return strings.Join(s.RecentSales, "\n")
}

// VolumeDisplay renders the summed sale volume.
func (s *Summary) VolumeDisplay() string {
	if s.SaleCount == 0 {
		return NotAvailable
	}
	out := s.TotalETH.StringFixed(4) + " ETH"
	if s.TotalUSD.IsPositive() {
		out += fmt.Sprintf(" (~$%s)", s.TotalUSD.StringFixed(2))
	}
	return out
}

// Aggregate folds events (expected newest first) into a summary.
func Aggregate(guildID string, events []Event, windowHours int, now time.Time) *Summary {
	sum := &Summary{
		GuildID:     guildID,
		WindowHours: windowHours,
		GeneratedAt: now.UTC(),
		TotalETH:    decimal.Zero,
		TotalUSD:    decimal.Zero,
	}

	contracts := make(map[string]*ContractCount)
	chains := make(map[chain.ID]int)

	for i := range events {
		evt := &events[i]
		switch evt.Kind {
		case KindMint:
			sum.MintCount++
		case KindSale:
			sum.SaleCount++
			if evt.AmountETH.Valid {
				sum.TotalETH = sum.TotalETH.Add(evt.AmountETH.Decimal)
				if betterSale(evt, sum.TopSale) {
					sum.TopSale = evt
				}
			}
			if evt.AmountUSD.Valid {
				sum.TotalUSD = sum.TotalUSD.Add(evt.AmountUSD.Decimal)
			}
			if len(sum.RecentSales) < maxRecentSales {
				sum.RecentSales = append(sum.RecentSales, saleLine(evt))
			}
		default:
			continue
		}

		if evt.Contract != "" {
			cc, ok := contracts[evt.Contract]
			if !ok {
				cc = &ContractCount{Contract: evt.Contract, Chain: evt.Chain}
				contracts[evt.Contract] = cc
			}
			cc.Count++
		}
		chains[evt.Chain]++
	}

	for _, cc := range contracts {
		if sum.TopContract == nil ||
			cc.Count > sum.TopContract.Count ||
			(cc.Count == sum.TopContract.Count && cc.Contract < sum.TopContract.Contract) {
			sum.TopContract = cc
		}
	}

	for id, n := range chains {
		sum.Chains = append(sum.Chains, ChainCount{Chain: id, Count: n})
	}
	sort.Slice(sum.Chains, func(i, j int) bool {
		if sum.Chains[i].Count != sum.Chains[j].Count {
			return sum.Chains[i].Count > sum.Chains[j].Count
		}
		return sum.Chains[i].Chain < sum.Chains[j].Chain
	})
	if len(sum.Chains) > maxChains {
		sum.Chains = sum.Chains[:maxChains]
	}

	return sum
}

// betterSale reports whether candidate beats the current top sale: larger
// amount first, then newer timestamp, then higher id.
func betterSale(candidate, current *Event) bool {
	if current == nil {
		return true
	}
	if cmp := candidate.AmountETH.Decimal.Cmp(current.AmountETH.Decimal); cmp != 0 {
		return cmp > 0
	}
	if !candidate.Timestamp.Equal(current.Timestamp) {
		return candidate.Timestamp.After(current.Timestamp)
	}
	return candidate.ID > current.ID
}

func saleLine(evt *Event) string {
	var b strings.Builder
	b.WriteString("`" + ShortAddress(evt.Contract) + "`")
	if evt.TokenID != "" {
		b.WriteString(" #" + evt.TokenID)
	}
	switch {
	case evt.AmountETH.Valid:
		b.WriteString(" for " + evt.AmountETH.Decimal.StringFixed(4) + " ETH")
	case evt.AmountNative.Valid:
		b.WriteString(" for " + evt.AmountNative.Decimal.StringFixed(4) + " " + evt.Chain.NativeSymbol())
	}
	if evt.AmountUSD.Valid && evt.AmountUSD.Decimal.IsPositive() {
		b.WriteString(" (~$" + evt.AmountUSD.Decimal.StringFixed(2) + ")")
	}
	if !evt.Timestamp.IsZero() {
		fmt.Fprintf(&b, " <t:%d:R>", evt.Timestamp.Unix())
	}
	return b.String()
}

// ShortAddress abbreviates a hex address to 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// Aggregator loads a window of events and summarizes it.
type Aggregator struct {
	store         EventStore
	defaultWindow int
	now           func() time.Time
}

// NewAggregator creates an aggregator. defaultWindowHours <= 0 means 24.
func NewAggregator(store EventStore, defaultWindowHours int) *Aggregator {
	if defaultWindowHours <= 0 {
		defaultWindowHours = 24
	}
	return &Aggregator{store: store, defaultWindow: defaultWindowHours, now: time.Now}
}

// Summarize rolls up the last windowHours of events for guildID. A
// non-positive window falls back to the aggregator default.
func (a *Aggregator) Summarize(ctx context.Context, guildID string, windowHours int) (*Summary, error) {
	if windowHours <= 0 {
		windowHours = a.defaultWindow
	}
	now := a.now().UTC()
	since := now.Add(-time.Duration(windowHours) * time.Hour)

	events, err := a.store.ListSince(ctx, guildID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load digest window: %w", err)
	}
	return Aggregate(guildID, events, windowHours, now), nil
}
