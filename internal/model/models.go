package model

import (
	"time"

	"gorm.io/gorm"

	"codeshop/internal/utils"
)

type BaseModel struct {
	ID        string     `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate hook to generate UUID for all models with duplicate checking
func (base *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if base.ID == "" {
		tableName := tx.Statement.Table
		if tableName == "" {
			tableName = tx.Statement.Schema.Table
		}

		uniqueID, err := utils.GenerateUniqueID(tx, tableName, "id")
		if err != nil {
			return err
		}
		base.ID = uniqueID
	} else {
		normalized, err := utils.NormalizeUUID(base.ID)
		if err != nil {
			return err
		}
		base.ID = normalized
	}
	return nil
}

// Code status values. A code starts active and becomes used exactly once,
// only through the activation transaction; it never reverts.
const (
	CodeStatusActive = "active"
	CodeStatusUsed   = "used"
)

// Code is a single-use redemption token with a face value (nominal).
type Code struct {
	BaseModel
	Code    string     `gorm:"not null;uniqueIndex" json:"code"`
	Nominal int        `gorm:"not null" json:"nominal"`
	Status  string     `gorm:"type:varchar(10);not null;default:'active';index" json:"status"`
	UsedAt  *time.Time `json:"used_at,omitempty"`
	BatchID *string    `gorm:"index" json:"batch_id,omitempty"`
}

// Order status values. Transitions are driven by the fulfillment operator;
// nothing in this service advances an order automatically.
const (
	OrderStatusQueued     = "queued"
	OrderStatusProcessing = "processing"
	OrderStatusDone       = "done"
	OrderStatusError      = "error"
)

// ValidOrderStatus reports whether s is one of the defined order states.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusQueued, OrderStatusProcessing, OrderStatusDone, OrderStatusError:
		return true
	}
	return false
}

// Order records a fulfillment request created when a code is activated.
// Code is a historical copy of the consumed code text, not a relation:
// orders must survive pruning of the codes table, and a used code row is
// never deleted.
type Order struct {
	BaseModel
	ShortCode string `gorm:"not null;uniqueIndex" json:"short_code"`
	Code      string `gorm:"not null;index" json:"code"`
	Nickname  string `gorm:"not null" json:"nickname"`
	UserRef   string `gorm:"not null" json:"user_ref"`
	ItemRef   string `gorm:"not null" json:"item_ref"`
	ItemURL   string `gorm:"not null" json:"item_url"`
	Status    string `gorm:"type:varchar(12);not null;default:'queued';index" json:"status"`
}

// Logging models

// RequestLog stores per-request basic information. No public API exposure.
type RequestLog struct {
	BaseModel
	Method     string  `gorm:"not null" json:"method"`
	Path       string  `gorm:"not null;index" json:"path"`
	Query      *string `json:"query,omitempty"`
	Status     int     `gorm:"not null" json:"status"`
	IP         *string `json:"ip,omitempty"`
	UserAgent  *string `json:"user_agent,omitempty"`
	DurationMs int64   `gorm:"not null" json:"duration_ms"`
	TraceID    *string `json:"trace_id,omitempty"`
}

// OperationLog records administrator operations such as code generation,
// imports, deletions and order status changes.
type OperationLog struct {
	BaseModel
	Action     string  `gorm:"not null;index" json:"action"` // e.g., generate_codes, import_codes, delete_code
	ObjectType string  `gorm:"not null;index" json:"object_type"`
	ObjectID   string  `gorm:"not null;index" json:"object_id"`
	Metadata   *string `json:"metadata,omitempty"`
}
