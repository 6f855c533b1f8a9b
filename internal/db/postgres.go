package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/uplinehq/upline-backend/internal/logger"
	"github.com/uplinehq/upline-backend/internal/types"
	"github.com/uplinehq/upline-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "upline", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Node{},
		&types.LedgerEntry{},
		&types.RewardEvent{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	if err := s.db.Exec(`
		ALTER TABLE "node"
		DROP CONSTRAINT IF EXISTS "fk_node_parent_id";
	`).Error; err != nil {
		return fmt.Errorf("Failed to reset fk_node_parent_id: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "node"
		ADD CONSTRAINT "fk_node_parent_id"
		FOREIGN KEY ("parent_id")
		REFERENCES "node"("id")
		ON DELETE RESTRICT
	`).Error; err != nil {
		return fmt.Errorf("Failed to add fk_node_parent_id: %w", err)
	}
	// Prefix scans over the materialized path back descendant queries.
	if err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS "idx_node_path_pattern"
		ON "node" ("path" text_pattern_ops)
	`).Error; err != nil {
		return fmt.Errorf("Failed to add idx_node_path_pattern: %w", err)
	}
	// At most one live upgrade event per node. Concurrent confirms race the
	// tier flip between enqueue and worker pickup; the index fences the window.
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS "uniq_reward_event_upgrade_subject"
		ON "reward_event" ("subject_node_id")
		WHERE event_type = 'upgrade' AND status <> 'failed'
	`).Error; err != nil {
		return fmt.Errorf("Failed to add uniq_reward_event_upgrade_subject: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
