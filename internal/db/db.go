package db

import (
	"errors"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"lucky-draw/internal/config"
)

// Open connects to Postgres using DATABASE_URL and applies the pool settings
// from cfg.
func Open(cfg config.Config) (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeSeconds) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeSeconds) * time.Second)
	return conn, nil
}

// Migrate runs GORM auto-migrations for the core tables. Production schemas
// are managed by the SQL migrations under db/migrations; this covers dev and
// test databases. The partial unique index guarding confirmed winners cannot
// be expressed as a struct tag, so it is created explicitly.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db connection is nil")
	}
	if err := conn.AutoMigrate(
		&Customer{},
		&Project{},
		&ProjectMember{},
		&Prize{},
		&DrawBatch{},
		&DrawWinner{},
		&ExclusionRule{},
	); err != nil {
		return err
	}
	return conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_confirmed_winner_per_prize
		 ON draw_winners (project_id, prize_id, customer_phone)
		 WHERE status = 'CONFIRMED'`,
	).Error
}
