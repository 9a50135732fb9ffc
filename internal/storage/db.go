package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database owns the store location and the engine opened on it. Scoped
// units of work are handed out by WithSession.
//
// Configure must not be called while WithSession scopes are running;
// doing so is undefined and is not guarded against.
type Database struct {
	mu   sync.Mutex
	path string
	db   *gorm.DB
	log  zerolog.Logger
}

// New returns a Database configured for the store file at path.
func New(path string, log zerolog.Logger) (*Database, error) {
	d := &Database{log: log}
	if err := d.Configure(path); err != nil {
		return nil, err
	}
	return d, nil
}

// Configure points the Database at a new store file. Parent directories
// are created, and any engine opened on the previous location is closed so
// the next unit of work reconnects.
func (d *Database) Configure(path string) error {
	if path == "" {
		return fmt.Errorf("failed to configure database: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("database path is not writable: %w", err)
	}
	f.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.closeLocked(); err != nil {
		return err
	}
	d.path = path
	d.log.Debug().Str("path", path).Msg("database configured")
	return nil
}

// Path returns the configured store location.
func (d *Database) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

func (d *Database) engine() (*gorm.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return d.db, nil
	}
	dsn := d.path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newQueryLogger(d.log),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	d.db = db
	return db, nil
}

// Initialize creates any missing tables. With force set, all tables are
// dropped first and every stored row is lost.
func (d *Database) Initialize(ctx context.Context, force bool) error {
	db, err := d.engine()
	if err != nil {
		return err
	}
	db = db.WithContext(ctx)
	if force {
		if err := db.Migrator().DropTable(&Transaction{}, &ImportSession{}, &Account{}); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
		d.log.Warn().Str("path", d.Path()).Msg("dropped all tables")
	}
	if err := db.AutoMigrate(&Account{}, &ImportSession{}, &Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// WithSession runs fn inside one unit of work. Writes commit when fn
// returns nil. When fn returns an error or panics, every write made through
// tx is rolled back and the error (or panic) is passed through unchanged.
func (d *Database) WithSession(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := d.engine()
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Transaction(fn)
}

// Close releases the engine. The Database can be used again afterwards
// and will reconnect on demand.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Database) closeLocked() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	d.db = nil
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
