package service

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"codeshop/internal/model"
)

// ImportCodesCSV reads tabular rows of {code, nominal, status?} and
// upserts each by code text: create when absent, overwrite nominal and
// status when present. Malformed rows are skipped, not fatal. Returns the
// number of rows applied.
func ImportCodesCSV(db *gorm.DB, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, errors.New("empty or unreadable csv")
	}
	codeCol, nominalCol, statusCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "code":
			codeCol = i
		case "nominal":
			nominalCol = i
		case "status":
			statusCol = i
		}
	}
	if codeCol < 0 || nominalCol < 0 {
		return 0, errors.New("csv must have code and nominal columns")
	}

	applied := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// malformed line, skip
			continue
		}
		if len(record) <= codeCol || len(record) <= nominalCol {
			continue
		}
		code := NormalizeCode(record[codeCol])
		nominal, convErr := strconv.Atoi(strings.TrimSpace(record[nominalCol]))
		if code == "" || convErr != nil || nominal < 1 {
			continue
		}
		status := model.CodeStatusActive
		if statusCol >= 0 && len(record) > statusCol {
			if s := strings.ToLower(strings.TrimSpace(record[statusCol])); s == model.CodeStatusUsed {
				status = model.CodeStatusUsed
			}
		}

		if err := upsertCode(db, code, nominal, status); err != nil {
			zap.L().Warn("import row failed", zap.String("code", code), zap.Error(err))
			continue
		}
		applied++
	}
	return applied, nil
}

func upsertCode(db *gorm.DB, code string, nominal int, status string) error {
	now := time.Now()
	var row model.Code
	err := db.First(&row, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := model.Code{Code: code, Nominal: nominal, Status: status}
		if status == model.CodeStatusUsed {
			created.UsedAt = &now
		}
		return db.Create(&created).Error
	}
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"nominal": nominal,
		"status":  status,
	}
	// Used rows must carry a consumption timestamp. The import has no
	// original one, so the import time stands in.
	if status == model.CodeStatusUsed && row.UsedAt == nil {
		updates["used_at"] = now
	}
	return db.Model(&row).Updates(updates).Error
}

// ExportOrdersCSV writes a flat dump of all order fields, newest first,
// with standard field quoting. Capped at 1000 rows.
func ExportOrdersCSV(db *gorm.DB, w io.Writer) error {
	var orders []model.Order
	if err := db.Where("deleted_at IS NULL").Order("created_at DESC").Limit(1000).Find(&orders).Error; err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"id", "short_code", "code", "nickname", "user_ref", "item_ref", "item_url", "status", "created_at", "updated_at",
	}); err != nil {
		return err
	}
	for _, o := range orders {
		if err := writer.Write([]string{
			o.ID,
			o.ShortCode,
			o.Code,
			o.Nickname,
			o.UserRef,
			o.ItemRef,
			o.ItemURL,
			o.Status,
			o.CreatedAt.UTC().Format(time.RFC3339),
			o.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
