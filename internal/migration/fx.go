package migration

import (
	checkoutdomain "github.com/smallbiznis/paygate/internal/checkout/domain"
	"github.com/smallbiznis/paygate/internal/config"
	ledgerdomain "github.com/smallbiznis/paygate/internal/ledger/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The versioned SQL migrations target postgres; other dialects
		// (mysql in staging, sqlite in tests) build their schema from the
		// model definitions.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&ledgerdomain.Invoice{},
				&ledgerdomain.PaymentEntry{},
				&checkoutdomain.SessionRecord{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
