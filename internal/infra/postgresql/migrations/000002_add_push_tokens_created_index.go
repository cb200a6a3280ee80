package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// ListAddresses and List both order by created_at.
func addPushTokensCreatedIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_push_tokens_created_index",
		Migrate: func(tx *gorm.DB) error {
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_push_tokens_created_at ON push_tokens (created_at, id)`,
				`CREATE INDEX IF NOT EXISTS idx_push_tokens_platform ON push_tokens (platform)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Exec(`DROP INDEX IF EXISTS idx_push_tokens_platform`).Error; err != nil {
				return err
			}
			return tx.Exec(`DROP INDEX IF EXISTS idx_push_tokens_created_at`).Error
		},
	}
}
