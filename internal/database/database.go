package database

import (
	"path/filepath"

	"emperror.dev/errors"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/burrowsh/burrow/config"
	"github.com/burrowsh/burrow/internal/models"
	"github.com/burrowsh/burrow/system"
)

var o system.AtomicBool
var db *gorm.DB

// Initialize configures the local SQLite database for the shell and ensures
// that the models have been fully migrated. The database file lives in the
// data directory, deliberately outside the sandbox root, so sessions can
// never list, read, or delete it.
func Initialize() error {
	if !o.SwapIf(true) {
		panic("database: attempt to initialize more than once during application lifecycle")
	}
	p := filepath.Join(config.Get().System.DataDirectory, "history.db")
	instance, err := gorm.Open(sqlite.Open(p), &gorm.Config{})
	if err != nil {
		return errors.Wrap(err, "database: could not open database file")
	}
	db = instance
	if err := db.AutoMigrate(&models.CommandHistory{}); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Instance returns the gorm database instance that was configured when the
// application was booted.
func Instance() *gorm.DB {
	if db == nil {
		panic("database: attempt to access instance before initialized")
	}
	return db
}
