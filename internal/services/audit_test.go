package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/tarhbox/backend/internal/models"
	"github.com/tarhbox/backend/pkg/logger"
	"gorm.io/gorm"
)

func setupAuditTest(t *testing.T) (*gorm.DB, *AuditService) {
	t.Helper()
	logger.Init()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("failed automigrating audit log: %v", err)
	}

	return db, NewAuditService(db)
}

func waitForAuditRows(t *testing.T, db *gorm.DB, expected int64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		if err := db.Model(&models.AuditLog{}).Count(&count).Error; err != nil {
			t.Fatalf("failed counting audit rows: %v", err)
		}
		if count >= expected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d audit rows", expected)
}

func TestLogAsyncPersistsEntry(t *testing.T) {
	db, service := setupAuditTest(t)

	userID := uuid.New()
	service.LogAsync(AuditEntry{
		UserID:       &userID,
		Action:       "user.login",
		ResourceType: "user",
		ResourceID:   &userID,
		Details:      map[string]interface{}{"ip_class": "internal"},
		IPAddress:    "127.0.0.1",
		RequestID:    "req-1",
	})

	waitForAuditRows(t, db, 1)

	var row models.AuditLog
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("failed loading audit row: %v", err)
	}
	if row.Action != "user.login" {
		t.Fatalf("expected action %q, got %q", "user.login", row.Action)
	}
	if row.UserID == nil || *row.UserID != userID {
		t.Fatalf("expected user id %s, got %v", userID, row.UserID)
	}
	if row.Details["ip_class"] != "internal" {
		t.Fatalf("expected details preserved, got %+v", row.Details)
	}
}

func TestLogAsyncKeepsOrder(t *testing.T) {
	db, service := setupAuditTest(t)

	actions := []string{"user.register", "user.login", "document.upload"}
	for _, action := range actions {
		service.LogAsync(AuditEntry{Action: action, ResourceType: "test"})
	}

	waitForAuditRows(t, db, int64(len(actions)))

	var rows []models.AuditLog
	if err := db.Order("created_at").Find(&rows).Error; err != nil {
		t.Fatalf("failed loading audit rows: %v", err)
	}
	for i, action := range actions {
		if rows[i].Action != action {
			t.Fatalf("expected action %q at position %d, got %q", action, i, rows[i].Action)
		}
	}
}
