package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/digest"
	"github.com/chainsafe/mintwatch/pkg/market"
	"github.com/chainsafe/mintwatch/pkg/scheduler"
	"github.com/chainsafe/mintwatch/pkg/staking"
	"github.com/chainsafe/mintwatch/pkg/tier"
	"github.com/chainsafe/mintwatch/pkg/tracker"
)

const testContract = "0x1234567890abcdef1234567890abcdef12345678"

type memContracts struct {
	contracts map[string]*tracker.Contract
}

func newMemContracts() *memContracts {
	return &memContracts{contracts: map[string]*tracker.Contract{}}
}

func (m *memContracts) AddContract(_ context.Context, c *tracker.Contract) error {
	if _, ok := m.contracts[c.Address]; ok {
		return tracker.ErrContractExists
	}
	cp := *c
	m.contracts[c.Address] = &cp
	return nil
}

func (m *memContracts) GetContract(_ context.Context, address string) (*tracker.Contract, error) {
	c, ok := m.contracts[tracker.NormalizeAddress(address)]
	if !ok {
		return nil, tracker.ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memContracts) Subscribe(_ context.Context, address, channelID string) error {
	c := m.contracts[address]
	for _, id := range c.ChannelIDs {
		if id == channelID {
			return nil
		}
	}
	c.ChannelIDs = append(c.ChannelIDs, channelID)
	return nil
}

func (m *memContracts) Unsubscribe(_ context.Context, address, channelID string) error {
	c := m.contracts[address]
	kept := c.ChannelIDs[:0]
	for _, id := range c.ChannelIDs {
		if id != channelID {
			kept = append(kept, id)
		}
	}
	c.ChannelIDs = kept
	return nil
}

func (m *memContracts) ListByGuild(_ context.Context, guildID string) ([]tracker.Contract, error) {
	var out []tracker.Contract
	for _, c := range m.contracts {
		if c.GuildID == guildID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memContracts) ListByChain(context.Context, chain.ID) ([]tracker.Contract, error) {
	return nil, nil
}

func TestTrack(t *testing.T) {
	store := newMemContracts()
	h := NewTrack(store, []chain.ID{chain.Ethereum, chain.Base})
	ctx := context.Background()

	add := newReq("track", "add", map[string]any{"name": "Apes", "address": "0x1234567890ABCDEF1234567890abcdef12345678", "chain": "base"})

	_, err := h.Handle(ctx, add)
	assert.True(t, apperrors.Is(err, apperrors.CategoryForbidden), "members without Manage Server cannot add")

	add.ManageGuild = true
	resp, err := h.Handle(ctx, add)
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "Tracking **Apes** on Base")
	require.Contains(t, store.contracts, testContract)
	assert.Equal(t, []string{"100"}, store.contracts[testContract].ChannelIDs)

	_, err = h.Handle(ctx, add)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict))

	bad := newReq("track", "add", map[string]any{"name": "X", "address": "nope", "chain": "eth"})
	bad.ManageGuild = true
	_, err = h.Handle(ctx, bad)
	assert.Equal(t, "That is not a valid contract address.", apperrors.UserMessage(err))

	disabled := newReq("track", "add", map[string]any{"name": "X", "address": testContract, "chain": "polygon"})
	disabled.ManageGuild = true
	_, err = h.Handle(ctx, disabled)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))

	sub := newReq("track", "subscribe", map[string]any{"address": testContract, "channel": "200"})
	sub.ManageGuild = true
	_, err = h.Handle(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "200"}, store.contracts[testContract].ChannelIDs)

	unsub := newReq("track", "unsubscribe", map[string]any{"address": testContract, "channel": "100"})
	unsub.ManageGuild = true
	_, err = h.Handle(ctx, unsub)
	require.NoError(t, err)
	assert.Equal(t, []string{"200"}, store.contracts[testContract].ChannelIDs)

	foreign := newReq("track", "subscribe", map[string]any{"address": testContract, "channel": "300"})
	foreign.GuildID = "g2"
	foreign.ManageGuild = true
	_, err = h.Handle(ctx, foreign)
	assert.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))

	resp, err = h.Handle(ctx, newReq("track", "list", nil))
	require.NoError(t, err)
	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Content, "**Apes**")
	assert.Contains(t, resp.Content, "<#200>")
}

type fakeDigestScheduler struct {
	rescheduled []string
	state       scheduler.State
	RunFunc     func(ctx context.Context, guildID string, hours int) (*digest.Summary, error)
}

func (f *fakeDigestScheduler) RescheduleGuild(_ context.Context, guildID string) error {
	f.rescheduled = append(f.rescheduled, guildID)
	return nil
}

func (f *fakeDigestScheduler) RunWindow(ctx context.Context, guildID string, hours int) (*digest.Summary, error) {
	return f.RunFunc(ctx, guildID, hours)
}

func (f *fakeDigestScheduler) State(string) scheduler.State { return f.state }

func (f *fakeDigestScheduler) NextRun(string) (time.Time, bool) {
	return time.Unix(1700000000, 0), f.state == scheduler.Armed
}

type memSettings struct {
	settings map[string]digest.Settings
}

func (m *memSettings) GetSettings(_ context.Context, guildID string) (*digest.Settings, error) {
	s, ok := m.settings[guildID]
	if !ok {
		return nil, digest.ErrSettingsNotFound
	}
	return &s, nil
}

func (m *memSettings) UpsertSettings(_ context.Context, s *digest.Settings) error {
	m.settings[s.GuildID] = *s
	return nil
}

func (m *memSettings) DisableSettings(_ context.Context, guildID string) error {
	s, ok := m.settings[guildID]
	if !ok {
		return digest.ErrSettingsNotFound
	}
	s.Enabled = false
	m.settings[guildID] = s
	return nil
}

func (m *memSettings) ListEnabledSettings(context.Context) ([]digest.Settings, error) {
	return nil, nil
}

func TestDigest_SetupAndOff(t *testing.T) {
	settings := &memSettings{settings: map[string]digest.Settings{}}
	sched := &fakeDigestScheduler{}
	h := NewDigest(settings, sched)
	ctx := context.Background()

	setup := newReq("digest", "setup", map[string]any{
		"channel":  "555",
		"timezone": "America/New_York",
		"hour":     int64(18),
		"minute":   int64(30),
		"recent":   false,
	})
	setup.ManageGuild = true

	resp, err := h.Handle(ctx, setup)
	require.NoError(t, err)
	assert.Equal(t, "Daily digest will post in <#555> at 18:30 America/New_York.", resp.Content)
	stored := settings.settings["g1"]
	assert.True(t, stored.Enabled)
	assert.False(t, stored.IncludeRecent)
	assert.True(t, stored.IncludeMints)
	assert.Equal(t, []string{"g1"}, sched.rescheduled)

	invalid := newReq("digest", "setup", map[string]any{"timezone": "Mars/Olympus"})
	invalid.ManageGuild = true
	_, err = h.Handle(ctx, invalid)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
	assert.Len(t, sched.rescheduled, 1)

	off := newReq("digest", "off", nil)
	off.ManageGuild = true
	_, err = h.Handle(ctx, off)
	require.NoError(t, err)
	assert.False(t, settings.settings["g1"].Enabled)
	assert.Len(t, sched.rescheduled, 2)

	off.GuildID = "g2"
	_, err = h.Handle(ctx, off)
	assert.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}

func TestDigest_NowAndStatus(t *testing.T) {
	settings := &memSettings{settings: map[string]digest.Settings{"g1": digest.DefaultSettings("g1", "100")}}
	sched := &fakeDigestScheduler{state: scheduler.Armed}
	h := NewDigest(settings, sched)
	ctx := context.Background()

	var gotHours int
	sched.RunFunc = func(_ context.Context, guildID string, hours int) (*digest.Summary, error) {
		gotHours = hours
		return &digest.Summary{GuildID: guildID, WindowHours: 6, MintCount: 3, SaleCount: 1}, nil
	}

	now := newReq("digest", "now", map[string]any{"hours": int64(6)})
	now.ManageGuild = true
	resp, err := h.Handle(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 6, gotHours)
	assert.Equal(t, "Digest posted: 3 mints and 1 sales in the last 6h.", resp.Content)

	now.Options["hours"] = int64(500)
	_, err = h.Handle(ctx, now)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))

	delete(now.Options, "hours")
	sched.RunFunc = func(context.Context, string, int) (*digest.Summary, error) {
		return nil, scheduler.ErrDeliveryFailed
	}
	_, err = h.Handle(ctx, now)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure))

	resp, err = h.Handle(ctx, newReq("digest", "status", nil))
	require.NoError(t, err)
	require.Len(t, resp.Embeds, 1)
	assert.Equal(t, "armed", resp.Embeds[0].Fields[0].Value)
	assert.Equal(t, "<t:1700000000:R>", resp.Embeds[0].Fields[3].Value)

	missing := newReq("digest", "status", nil)
	missing.GuildID = "g9"
	resp, err = h.Handle(ctx, missing)
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "not set up")
}

type fakeStaking struct {
	StakeFunc  func(ctx context.Context, guildID, userID, contract, tokenID string) (*staking.Project, error)
	ClaimFunc  func(ctx context.Context, guildID, userID string) (decimal.Decimal, error)
	rewards    *staking.Rewards
	rewardsErr error
}

func (f *fakeStaking) CreateProject(_ context.Context, guildID, name, contract, chainName, rewardPerDay, symbol string) (*staking.Project, error) {
	rate, err := decimal.NewFromString(rewardPerDay)
	if err != nil {
		return nil, staking.ErrInvalidInput
	}
	return &staking.Project{GuildID: guildID, Name: name, Contract: contract, RewardPerDay: rate, TokenSymbol: symbol}, nil
}

func (f *fakeStaking) LinkWallet(_ context.Context, _, _, wallet string) (string, error) {
	return wallet, nil
}

func (f *fakeStaking) Stake(ctx context.Context, guildID, userID, contract, tokenID string) (*staking.Project, error) {
	return f.StakeFunc(ctx, guildID, userID, contract, tokenID)
}

func (f *fakeStaking) Unstake(context.Context, string, string, string, string) (decimal.Decimal, error) {
	return decimal.RequireFromString("1.5"), nil
}

func (f *fakeStaking) Rewards(context.Context, string, string) (*staking.Rewards, error) {
	return f.rewards, f.rewardsErr
}

func (f *fakeStaking) Claim(ctx context.Context, guildID, userID string) (decimal.Decimal, error) {
	return f.ClaimFunc(ctx, guildID, userID)
}

func TestStake(t *testing.T) {
	svc := &fakeStaking{}
	h := NewStake(svc)
	ctx := context.Background()

	project := newReq("stake", "project", map[string]any{"name": "Apes", "address": testContract, "chain": "eth", "reward_per_day": "10", "symbol": "BANANA"})
	_, err := h.Handle(ctx, project)
	assert.True(t, apperrors.Is(err, apperrors.CategoryForbidden))
	project.ManageGuild = true
	resp, err := h.Handle(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, "Staking project **Apes** pays 10 BANANA per token per day.", resp.Content)

	errs := map[error]apperrors.Category{
		staking.ErrWalletNotLinked: apperrors.CategoryDataError,
		staking.ErrNotOwner:        apperrors.CategoryForbidden,
		staking.ErrAlreadyStaked:   apperrors.CategoryDataConflict,
		staking.ErrProjectNotFound: apperrors.CategoryResourceNotFound,
		errors.New("rpc: timeout"): apperrors.CategoryGeneralError,
	}
	for cause, cat := range errs {
		svc.StakeFunc = func(context.Context, string, string, string, string) (*staking.Project, error) {
			return nil, cause
		}
		_, err := h.Handle(ctx, newReq("stake", "add", map[string]any{"address": testContract, "token_id": "7"}))
		assert.True(t, apperrors.Is(err, cat), "cause %v", cause)
	}

	svc.StakeFunc = func(context.Context, string, string, string, string) (*staking.Project, error) {
		return &staking.Project{Name: "Apes"}, nil
	}
	resp, err = h.Handle(ctx, newReq("stake", "add", map[string]any{"address": testContract, "token_id": "7"}))
	require.NoError(t, err)
	assert.Equal(t, "Token #7 staked in **Apes**.", resp.Content)
	assert.True(t, resp.Ephemeral)

	resp, err = h.Handle(ctx, newReq("stake", "remove", map[string]any{"address": testContract, "token_id": "7"}))
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "1.5 moved to your balance")

	svc.ClaimFunc = func(context.Context, string, string) (decimal.Decimal, error) { return decimal.Zero, nil }
	resp, err = h.Handle(ctx, newReq("stake", "claim", nil))
	require.NoError(t, err)
	assert.Equal(t, "Nothing to claim yet.", resp.Content)

	svc.ClaimFunc = func(context.Context, string, string) (decimal.Decimal, error) {
		return decimal.RequireFromString("12.25"), nil
	}
	resp, err = h.Handle(ctx, newReq("stake", "claim", nil))
	require.NoError(t, err)
	assert.Equal(t, "Claimed 12.25.", resp.Content)
}

func TestStake_RewardsEmbed(t *testing.T) {
	svc := &fakeStaking{rewards: &staking.Rewards{
		Wallet: "0xwallet",
		Positions: []staking.PositionView{{
			Position:     staking.Position{Contract: testContract, TokenID: "7"},
			RewardPerDay: decimal.NewFromInt(10),
			TokenSymbol:  "BANANA",
		}},
		Pending:      decimal.RequireFromString("2.5"),
		Balance:      decimal.RequireFromString("1"),
		TotalClaimed: decimal.Zero,
	}}
	resp, err := NewStake(svc).Handle(context.Background(), newReq("stake", "rewards", nil))
	require.NoError(t, err)
	require.Len(t, resp.Embeds, 1)

	fields := resp.Embeds[0].Fields
	assert.Contains(t, fields[1].Value, "#7 (10/day)")
	assert.Equal(t, "2.5 BANANA", fields[2].Value)
	assert.Equal(t, "3.5 BANANA", fields[4].Value)
}

type memTiers struct {
	tiers map[string]*tier.GuildTier
}

func (m *memTiers) Get(_ context.Context, guildID string) (*tier.GuildTier, error) {
	if gt, ok := m.tiers[guildID]; ok {
		return gt, nil
	}
	return &tier.GuildTier{GuildID: guildID, Tier: tier.Free}, nil
}

func (m *memTiers) Set(_ context.Context, guildID string, t tier.Tier, days int) (*tier.GuildTier, error) {
	gt := &tier.GuildTier{GuildID: guildID, Tier: t}
	if days > 0 {
		exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		gt.ExpiresAt = &exp
	}
	m.tiers[guildID] = gt
	return gt, nil
}

func TestTier(t *testing.T) {
	tiers := &memTiers{tiers: map[string]*tier.GuildTier{}}
	h := NewTier(tiers, []string{"owner"})
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	resp, err := h.Handle(ctx, newReq("tier", "show", nil))
	require.NoError(t, err)
	assert.Equal(t, "This server is on the **free** tier.", resp.Content)

	set := newReq("tier", "set", map[string]any{"tier": "premium+", "days": int64(30)})
	_, err = h.Handle(ctx, set)
	assert.True(t, apperrors.Is(err, apperrors.CategoryForbidden))

	set.UserID = "owner"
	resp, err = h.Handle(ctx, set)
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "**premiumplus** tier until")
	assert.Equal(t, tier.PremiumPlus, tiers.tiers["g1"].Tier)

	set.Options["tier"] = "gold"
	_, err = h.Handle(ctx, set)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))

	h.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
	resp, err = h.Handle(ctx, newReq("tier", "show", nil))
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "**free** tier (premiumplus expired")
}

type fakePrices map[string]decimal.Decimal

func (f fakePrices) USD(_ context.Context, symbol string) decimal.Decimal {
	return f[symbol]
}

type fakeMeta struct {
	md market.Metadata
}

func (f *fakeMeta) Token(context.Context, chain.ID, string, string) market.Metadata {
	return f.md
}

type fakeAssistant struct {
	prompt string
}

func (f *fakeAssistant) Reply(_ context.Context, guildName, prompt string) string {
	f.prompt = prompt
	return "gm " + guildName
}

func TestPriceFlexAsk(t *testing.T) {
	ctx := context.Background()

	price := NewPrice(fakePrices{"ETH": decimal.RequireFromString("3456.789")})
	resp, err := price.Handle(ctx, newReq("price", "", map[string]any{"symbol": "eth"}))
	require.NoError(t, err)
	assert.Equal(t, "**ETH** is $3456.79", resp.Content)

	_, err = price.Handle(ctx, newReq("price", "", map[string]any{"symbol": "DOGE"}))
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure))

	meta := &fakeMeta{md: market.Metadata{
		Name:       "Ape #7",
		Image:      "https://img/7.png",
		RarityRank: 12,
		Traits:     []market.Trait{{Type: "Fur", Value: "Gold"}},
	}}
	flex := NewFlex(meta)
	resp, err = flex.Handle(ctx, newReq("flex", "", map[string]any{"address": testContract, "token_id": "7"}))
	require.NoError(t, err)
	require.Len(t, resp.Embeds, 1)
	assert.Equal(t, "Ape #7", resp.Embeds[0].Title)
	assert.Equal(t, "alice is flexing", resp.Embeds[0].Description)
	assert.Equal(t, "#12", resp.Embeds[0].Fields[0].Value)
	assert.Equal(t, "Gold", resp.Embeds[0].Fields[1].Value)

	meta.md = market.Metadata{Name: "unknown"}
	_, err = flex.Handle(ctx, newReq("flex", "", map[string]any{"address": testContract, "token_id": "7"}))
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure))

	assistant := &fakeAssistant{}
	ask := NewAsk(assistant)
	resp, err = ask.Handle(ctx, newReq("ask", "", map[string]any{"prompt": " wen moon "}))
	require.NoError(t, err)
	assert.Equal(t, "gm Apes", resp.Content)
	assert.Equal(t, "wen moon", assistant.prompt)

	_, err = ask.Handle(ctx, newReq("ask", "", nil))
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}
