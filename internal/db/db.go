package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/types"
	"github.com/platewise/platewise-backend/internal/utils"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewService connects to Postgres when DATABASE_URL (or POSTGRES_HOST) is
// configured and otherwise falls back to a local SQLite file, matching the
// local-dev default of the rest of the stack.
func NewService(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	dsn := strings.TrimSpace(utils.GetEnv("DATABASE_URL", "", log))
	if dsn == "" {
		host := strings.TrimSpace(utils.GetEnv("POSTGRES_HOST", "", log))
		if host != "" {
			port := utils.GetEnv("POSTGRES_PORT", "5432", log)
			user := utils.GetEnv("POSTGRES_USER", "postgres", log)
			password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
			name := utils.GetEnv("POSTGRES_NAME", "platewise", log)
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		}
	}

	var (
		gdb *gorm.DB
		err error
	)
	if dsn != "" {
		serviceLog.Info("Connecting to Postgres...")
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			serviceLog.Error("Failed to connect to Postgres", "error", err)
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	} else {
		path := utils.GetEnv("SQLITE_PATH", "./app.db", log)
		serviceLog.Info("DATABASE_URL not set; using SQLite", "path", path)
		gdb, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
		if err != nil {
			serviceLog.Error("Failed to open SQLite", "error", err)
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
	}

	return &Service{db: gdb, log: serviceLog}, nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.ChatSession{},
		&types.Message{},
		&types.HealthProfile{},
		&types.RecipeCacheEntry{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}
