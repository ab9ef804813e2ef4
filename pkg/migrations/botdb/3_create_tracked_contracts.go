package botdb

import (
	"context"
	"log"

	mghelper "github.com/chainsafe/mintwatch/pkg/pgutil/migrations"
	"github.com/chainsafe/mintwatch/pkg/tracker"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating tracked_contracts table...")
		if err := mghelper.CreateSchema(ctx, db, &tracker.ContractDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &tracker.ContractDao{}, "guild_id", "chain")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping tracked_contracts table...")
		return mghelper.DropTables(ctx, db, &tracker.ContractDao{})
	})
}
