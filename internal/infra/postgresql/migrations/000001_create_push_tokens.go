package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/push-broadcast/internal/repository"
	"gorm.io/gorm"
)

func createPushTokensTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_push_tokens",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.PushTokenModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PushTokenModel{})
		},
	}
}
