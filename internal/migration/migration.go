package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	customerdomain "github.com/smallbiznis/storefront/internal/customer/domain"
	discountdomain "github.com/smallbiznis/storefront/internal/discount/domain"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/storefront/internal/order/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/storefront/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/storefront/internal/webhook/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the storefront owns, for dialects the SQL
// migrations do not target.
func Models() []any {
	return []any{
		&webhookdomain.IdempotencyRecord{},
		&webhookdomain.FailureRecord{},
		&customerdomain.Profile{},
		&customerdomain.Referral{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Purchase{},
		&orderdomain.Order{},
		&inventorydomain.Variant{},
		&inventorydomain.Adjustment{},
		&discountdomain.Discount{},
		&discountdomain.PromotionRedemption{},
	}
}

// AutoMigrate creates the tables through gorm.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
