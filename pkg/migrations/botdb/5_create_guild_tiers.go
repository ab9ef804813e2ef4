package botdb

import (
	"context"
	"log"

	mghelper "github.com/chainsafe/mintwatch/pkg/pgutil/migrations"
	"github.com/chainsafe/mintwatch/pkg/tier"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating guild_tiers table...")
		return mghelper.CreateSchema(ctx, db, &tier.GuildTierDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping guild_tiers table...")
		return mghelper.DropTables(ctx, db, &tier.GuildTierDao{})
	})
}
