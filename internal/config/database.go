package config

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the process-wide gorm handle, set by ConnectDatabase and read by
// the health endpoint.
var DB *gorm.DB

// ConnectDatabase opens the MySQL pool for the platform database. Dev mode
// logs every statement; prod only errors. Workflow services open explicit
// transactions around each transition, so the per-statement default
// transaction is skipped.
func ConnectDatabase(cfg *Config) (*gorm.DB, error) {
	var gormLogger logger.Interface
	if cfg.IsDev() {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(mysql.Open(dsn(cfg.Database)), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	DB = db
	log.Printf("database connected %s:%s/%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	return db, nil
}

// dsn builds the MySQL connection string. parseTime is required for the
// time.Time columns on workflow records; utf8mb4 covers member names.
func dsn(d DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

// CloseDatabase closes the pool on shutdown.
func CloseDatabase() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the pool for the health endpoint.
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
