package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygate/internal/checkout"
	"github.com/smallbiznis/paygate/internal/clock"
	"github.com/smallbiznis/paygate/internal/config"
	"github.com/smallbiznis/paygate/internal/ledger"
	"github.com/smallbiznis/paygate/internal/logger"
	"github.com/smallbiznis/paygate/internal/migration"
	obsmetrics "github.com/smallbiznis/paygate/internal/observability/metrics"
	"github.com/smallbiznis/paygate/internal/payment"
	"github.com/smallbiznis/paygate/internal/processor/stripeapi"
	"github.com/smallbiznis/paygate/internal/server"
	"github.com/smallbiznis/paygate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		obsmetrics.Module,

		// Functional domains
		stripeapi.Module,
		ledger.Module,
		payment.Module,
		checkout.Module,
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
