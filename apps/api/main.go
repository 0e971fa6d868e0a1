package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	"github.com/smallbiznis/invosync/internal/logger"
	"github.com/smallbiznis/invosync/internal/migration"
	"github.com/smallbiznis/invosync/internal/server"
	"github.com/smallbiznis/invosync/pkg/db"
	"go.uber.org/fx"
)

// API-only process: accepts webhooks and serves the management API, never
// executes sync jobs. Pair with apps/worker.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
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
