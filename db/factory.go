package db

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config holds configuration for database initialization.
type Config struct {
	// DBPath is the path to the database file.
	DBPath string

	// UseMemory opens a private in-memory database instead of DBPath.
	UseMemory bool

	// ExternalDB is an already opened handle. Migrations still run unless
	// SkipMigrations is set.
	ExternalDB *sql.DB

	// SkipMigrations leaves the schema untouched.
	SkipMigrations bool
}

// DefaultConfig returns a default database configuration.
func DefaultConfig(dbPath string) *Config {
	return &Config{
		DBPath: dbPath,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ExternalDB == nil && !c.UseMemory && c.DBPath == "" {
		return fmt.Errorf("database path required")
	}

	return nil
}

// dsn returns the data source name for the sqlite driver.
func (c *Config) dsn() string {
	pragmas := "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if c.UseMemory {
		return ":memory:"
	}

	return "file:" + filepath.ToSlash(c.DBPath) + pragmas
}

// InitDatabase opens the journal database and applies the schema.
func InitDatabase(cfg *Config) (*JournalStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, owned := cfg.ExternalDB, false
	if db == nil {
		var err error
		db, err = sql.Open("sqlite", cfg.dsn())
		if err != nil {
			return nil, fmt.Errorf("unable to open database: %w", err)
		}

		// Writers are serialized by sqlite anyway, and an in-memory
		// database only lives on a single connection.
		db.SetMaxOpenConns(1)
		owned = true
	}

	fail := func(err error) (*JournalStore, error) {
		if owned {
			db.Close()
		}
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return fail(fmt.Errorf("unable to reach database: %w", err))
	}

	if !cfg.SkipMigrations {
		if err := applyMigrations(db); err != nil {
			return fail(err)
		}
	}

	switch {
	case !owned:
		log.Infof("Using external journal database")
	case cfg.UseMemory:
		log.Infof("Opened in-memory journal")
	default:
		log.Infof("Opened journal at %v", cfg.DBPath)
	}

	return NewJournalStore(db), nil
}

// InitMemoryDatabase creates an in-memory database (useful for testing).
func InitMemoryDatabase() (*JournalStore, error) {
	return InitDatabase(&Config{
		UseMemory: true,
	})
}
