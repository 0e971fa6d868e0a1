package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invosync/internal/account"
	"github.com/smallbiznis/invosync/internal/broadcast"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	"github.com/smallbiznis/invosync/internal/event"
	"github.com/smallbiznis/invosync/internal/fatture"
	"github.com/smallbiznis/invosync/internal/jobqueue"
	"github.com/smallbiznis/invosync/internal/logger"
	"github.com/smallbiznis/invosync/internal/migration"
	"github.com/smallbiznis/invosync/internal/resource"
	"github.com/smallbiznis/invosync/internal/syncengine"
	"github.com/smallbiznis/invosync/pkg/db"
	"go.uber.org/fx"
)

// Worker-only process: drains the sync job queue. Pair with apps/api.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		account.Module,
		resource.Module,
		event.Module,
		fatture.Module,
		broadcast.Module,

		jobqueue.Module,
		syncengine.Module,
		jobqueue.WorkerModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
