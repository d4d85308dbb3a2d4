package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/entrada-events/entrada/internal/clock"
	"github.com/entrada-events/entrada/internal/config"
	"github.com/entrada-events/entrada/internal/migration"
	"github.com/entrada-events/entrada/internal/observability"
	"github.com/entrada-events/entrada/internal/scheduler"
	"github.com/entrada-events/entrada/internal/server"
	"github.com/entrada-events/entrada/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
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
