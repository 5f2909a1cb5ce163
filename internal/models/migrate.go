package models

import (
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
)

// Migrate runs database migrations. Every table is attempted so a single
// bad schema change reports alongside the others instead of hiding them.
func Migrate(db *gorm.DB) error {
	tables := []interface{}{
		&Job{},
		&Action{},
		&JobTarget{},
		&Target{},
		&CommunicationMethod{},
		&Execution{},
		&Branch{},
		&ActionResult{},
	}

	var result *multierror.Error
	for _, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
