package main

import (
	"github.com/atolldev/billscan/internal/config"
	"github.com/atolldev/billscan/internal/migration"
	"github.com/atolldev/billscan/internal/server"
	"github.com/atolldev/billscan/pkg/db"
	"github.com/atolldev/billscan/pkg/log"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
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
