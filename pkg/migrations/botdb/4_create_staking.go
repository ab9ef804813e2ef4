package botdb

import (
	"context"
	"log"

	mghelper "github.com/chainsafe/mintwatch/pkg/pgutil/migrations"
	"github.com/chainsafe/mintwatch/pkg/staking"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating staking tables...")
		if err := mghelper.CreateSchema(ctx, db,
			&staking.ProjectDao{},
			&staking.PositionDao{},
			&staking.LedgerDao{},
			&staking.WalletDao{},
		); err != nil {
			return err
		}
		if err := mghelper.CreateUniqueIndex(ctx, db, &staking.ProjectDao{}, staking.ProjectUniqueIndex, "guild_id", "contract", "chain"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &staking.PositionDao{}, "guild_id", "project_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping staking tables...")
		return mghelper.DropTables(ctx, db,
			&staking.WalletDao{},
			&staking.LedgerDao{},
			&staking.PositionDao{},
			&staking.ProjectDao{},
		)
	})
}
