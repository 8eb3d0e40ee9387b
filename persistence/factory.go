package persistence

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config selects and configures a Store implementation.
type Config struct {
	// Driver is one of: memory, sqlite, postgres, mysql, redis.
	Driver string `yaml:"driver" json:"driver"`

	// DSN is the connection string for relational drivers.
	DSN string `yaml:"dsn" json:"dsn"`

	Pool  PoolConfig  `yaml:"pool" json:"pool"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// DefaultConfig returns an in-process SQLite configuration.
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		DSN:    "file:memflow.db",
		Pool:   DefaultPoolConfig(),
		Redis:  DefaultRedisConfig(),
	}
}

// Open constructs the Store selected by cfg.Driver.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case "", "memory":
		return NewInMemoryStore(), nil

	case "redis":
		return NewRedisStore(cfg.Redis, logger)

	case "sqlite", "postgres", "mysql":
		dialector, err := dialectorFor(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
		}
		return NewGormStore(db, cfg.Pool, logger)

	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Driver)
	}
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required for driver %q", driver)
	}
	switch driver {
	case "sqlite":
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown relational driver %q", driver)
	}
}
