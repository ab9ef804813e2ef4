package botdb

import (
	"context"
	"log"

	"github.com/chainsafe/mintwatch/pkg/digest"
	mghelper "github.com/chainsafe/mintwatch/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

const digestEventsWindowIndex = "idx_digest_events_guild_ts"

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating digest_events table...")
		if err := mghelper.CreateSchema(ctx, db, &digest.EventDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateUniqueExprIndex(ctx, db, &digest.EventDao{}, digest.DedupeIndex, digest.DedupeIndexExprs...); err != nil {
			return err
		}
		_, err := db.NewCreateIndex().
			Model(&digest.EventDao{}).
			Index(digestEventsWindowIndex).
			Column("guild_id", "ts").
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping digest_events table...")
		return mghelper.DropTables(ctx, db, &digest.EventDao{})
	})
}
