package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func all() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createPushTokensTable(),
		addPushTokensCreatedIndex(),
	}
}

func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database is required")
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, all())
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
