package service

import (
	"encoding/json"

	"gorm.io/gorm"

	"codeshop/internal/model"
)

// LogOperation creates an operation log record for admin actions.
// Logging failures are deliberately swallowed: audit records must not
// break the operation they describe.
func LogOperation(db *gorm.DB, action, objectType, objectID string, metadata map[string]any) {
	var metaStr *string
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			s := string(b)
			metaStr = &s
		}
	}
	_ = db.Create(&model.OperationLog{
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		Metadata:   metaStr,
	}).Error
}
