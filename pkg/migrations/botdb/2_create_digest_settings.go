package botdb

import (
	"context"
	"log"

	"github.com/chainsafe/mintwatch/pkg/digest"
	mghelper "github.com/chainsafe/mintwatch/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating digest_settings table...")
		if err := mghelper.CreateSchema(ctx, db, &digest.SettingsDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &digest.SettingsDao{}, "enabled")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping digest_settings table...")
		return mghelper.DropTables(ctx, db, &digest.SettingsDao{})
	})
}
