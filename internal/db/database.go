package db

import (
	"log"
	"time"

	"fasset-backend/internal/config"
	"fasset-backend/internal/metrics"
	"fasset-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN
	log.Printf("Connecting to database: %s", dsn)

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		DisableAutomaticPing:                     true,
		PrepareStmt:                              true,
		CreateBatchSize:                          1000,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	log.Println("✅ Database connected successfully")

	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")

	if err := DB.AutoMigrate(
		&models.Agent{},
		&models.CollateralWithdrawal{},
		&models.RedemptionTicket{},
		&models.CollateralReservation{},
		&models.RedemptionRequest{},
		&models.PaymentRecord{},
		&models.UnderlyingBlock{},
		&models.ProtocolEvent{},
		&models.ChallengeEvent{},
		&models.LiquidationEvent{},
		&models.PriceSnapshot{},
	); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("✅ Database schema migrated successfully")

	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
		metrics.DBConnectionPoolSize.Set(50)
	}
	metrics.DBConnectionStatus.Set(1)
}

// HealthCheck pings the database and updates the connection metrics.
func HealthCheck() error {
	sqlDB, err := DB.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return err
	}
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return err
	}
	metrics.DBConnectionStatus.Set(1)
	metrics.DBConnectionActive.Set(float64(sqlDB.Stats().InUse))
	return nil
}
