package staking

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/pgutil"
	mghelper "github.com/chainsafe/mintwatch/pkg/pgutil/migrations"
)

func setupStore(t *testing.T) (context.Context, *pgStore) {
	t.Helper()

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	require.NoError(t, mghelper.CreateSchema(ctx, db, &ProjectDao{}, &PositionDao{}, &LedgerDao{}, &WalletDao{}))
	require.NoError(t, mghelper.CreateUniqueIndex(ctx, db, &ProjectDao{}, ProjectUniqueIndex, "guild_id", "contract", "chain"))
	return ctx, NewStore(db)
}

func TestPgStore_Projects(t *testing.T) {
	ctx, store := setupStore(t)

	p := &Project{GuildID: guild, Contract: apes, Chain: chain.Ethereum, Name: "Apes", RewardPerDay: decimal.NewFromInt(10), TokenSymbol: "APE"}
	require.NoError(t, store.CreateProject(ctx, p))
	assert.NotZero(t, p.ID)

	dup := *p
	require.ErrorIs(t, store.CreateProject(ctx, &dup), ErrProjectExists)

	other := &Project{GuildID: guild, Contract: apes, Chain: chain.Base, Name: "Base Apes", RewardPerDay: decimal.NewFromInt(1), TokenSymbol: "APE"}
	require.NoError(t, store.CreateProject(ctx, other))

	got, err := store.GetProject(ctx, guild, apes)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, got.RewardPerDay.Equal(decimal.NewFromInt(10)))

	list, err := store.ListProjects(ctx, guild)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = store.GetProject(ctx, "other", apes)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestPgStore_Wallets(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.GetWallet(ctx, guild, member)
	require.ErrorIs(t, err, ErrWalletNotLinked)

	require.NoError(t, store.LinkWallet(ctx, guild, member, alice))
	require.NoError(t, store.LinkWallet(ctx, guild, member, alice))
	require.ErrorIs(t, store.LinkWallet(ctx, guild, "u2", alice), ErrWalletTaken)
	require.NoError(t, store.LinkWallet(ctx, "g2", "u2", alice))

	w, err := store.GetWallet(ctx, guild, member)
	require.NoError(t, err)
	assert.Equal(t, alice, w)
}

func TestPgStore_PositionsAndLedger(t *testing.T) {
	ctx, store := setupStore(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	p := &Project{GuildID: guild, Contract: apes, Chain: chain.Ethereum, Name: "Apes", RewardPerDay: decimal.NewFromInt(4), TokenSymbol: "APE"}
	require.NoError(t, store.CreateProject(ctx, p))

	for _, id := range []string{"1", "2"} {
		require.NoError(t, store.AddPosition(ctx, &Position{
			Wallet: alice, Contract: apes, TokenID: id, GuildID: guild, UserID: member,
			ProjectID: p.ID, StakedAt: start, LastClaimedAt: start,
		}))
	}
	err := store.AddPosition(ctx, &Position{
		Wallet: alice, Contract: apes, TokenID: "1", GuildID: guild, UserID: member,
		ProjectID: p.ID, StakedAt: start, LastClaimedAt: start,
	})
	require.ErrorIs(t, err, ErrAlreadyStaked)

	views, err := store.ListPositions(ctx, guild, alice)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "APE", views[0].TokenSymbol)
	assert.True(t, views[0].RewardPerDay.Equal(decimal.NewFromInt(4)))

	settled, err := store.RemovePosition(ctx, alice, apes, "2", start.Add(12*time.Hour))
	require.NoError(t, err)
	assert.True(t, settled.Equal(decimal.NewFromInt(2)), "got %s", settled)

	_, err = store.RemovePosition(ctx, alice, apes, "2", start.Add(12*time.Hour))
	require.ErrorIs(t, err, ErrPositionNotFound)

	ledger, err := store.GetLedger(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ledger.Balance.Equal(decimal.NewFromInt(2)))

	claimed, err := store.Claim(ctx, guild, alice, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed.Equal(decimal.NewFromInt(6)), "got %s", claimed)

	ledger, err = store.GetLedger(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ledger.Balance.IsZero())
	assert.True(t, ledger.TotalClaimed.Equal(decimal.NewFromInt(6)))

	claimed, err = store.Claim(ctx, guild, alice, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())
}

func TestPgStore_EmptyLedger(t *testing.T) {
	ctx, store := setupStore(t)

	ledger, err := store.GetLedger(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ledger.Balance.IsZero())
	assert.True(t, ledger.TotalClaimed.IsZero())
}
