package service

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"codeshop/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal("failed to open test database:", err)
	}
	// Single connection so the in-memory database is shared and concurrent
	// transactions serialize instead of hitting SQLITE_BUSY.
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatal("failed to get sql.DB:", err)
	}
	sqlDB.SetMaxOpenConns(1)
	_ = database.Exec("PRAGMA busy_timeout=10000;").Error

	if err := database.AutoMigrate(&model.Code{}, &model.Order{}, &model.RequestLog{}, &model.OperationLog{}); err != nil {
		t.Fatal("failed to migrate test database:", err)
	}
	return database
}

func seedCode(t *testing.T, database *gorm.DB, text string, nominal int, status string) *model.Code {
	t.Helper()
	row := &model.Code{Code: NormalizeCode(text), Nominal: nominal, Status: status}
	if err := database.Create(row).Error; err != nil {
		t.Fatal("failed to seed code:", err)
	}
	return row
}
