package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	"github.com/smallbiznis/invosync/internal/jobqueue"
	"github.com/smallbiznis/invosync/internal/logger"
	"github.com/smallbiznis/invosync/internal/migration"
	"github.com/smallbiznis/invosync/internal/server"
	"github.com/smallbiznis/invosync/internal/syncengine"
	"github.com/smallbiznis/invosync/pkg/db"
	"go.uber.org/fx"
)

// The monolith runs the webhook API and the sync worker pool in one
// process. apps/api and apps/worker split them for scaled deployments.
func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP API plus all domain modules
		server.Module,

		// Async processing
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
