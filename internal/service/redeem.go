package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"codeshop/internal/model"
)

const shortCodeLen = 6

// ValidationResult is returned by the read-only validation step. Code is
// the normalized text the client must echo back when activating.
type ValidationResult struct {
	Code    string `json:"code"`
	Nominal int    `json:"nominal"`
}

// ActivationInput carries the fulfillment details confirmed by the user
// between validation and activation.
type ActivationInput struct {
	Code     string
	Nickname string
	UserRef  string
	ItemRef  string
	ItemURL  string
}

// RedemptionService implements the two-phase validate-then-activate flow.
// Validation never mutates state; activation re-validates inside a
// transaction because time may have passed and a concurrent request may
// have consumed the code in between.
type RedemptionService struct {
	db   *gorm.DB
	rand io.Reader
}

func NewRedemptionService(db *gorm.DB) *RedemptionService {
	return &RedemptionService{db: db, rand: rand.Reader}
}

// Validate checks format, checksum and liveness of submitted code text
// without consuming it, so the user can review item details first.
func (s *RedemptionService) Validate(text string) (*ValidationResult, error) {
	code := NormalizeCode(text)
	if !IsWellFormed(code) {
		return nil, ErrInvalidFormat
	}
	if !VerifyChecksum(code) {
		return nil, ErrInvalidChecksum
	}

	var row model.Code
	if err := s.db.First(&row, "code = ? AND deleted_at IS NULL", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if row.Status != model.CodeStatusActive {
		return nil, ErrCodeAlreadyUsed
	}
	return &ValidationResult{Code: code, Nominal: row.Nominal}, nil
}

// Activate atomically consumes a code and creates its order. Among
// concurrent calls for the same code text exactly one succeeds; the
// conditional status update is the correctness mechanism, not the
// preceding read.
func (s *RedemptionService) Activate(in ActivationInput) (*model.Order, error) {
	code := NormalizeCode(in.Code)
	if !IsWellFormed(code) {
		return nil, ErrInvalidFormat
	}
	if !VerifyChecksum(code) {
		return nil, ErrInvalidChecksum
	}

	var order *model.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row model.Code
		if err := tx.First(&row, "code = ? AND deleted_at IS NULL", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return err
		}
		if row.Status != model.CodeStatusActive {
			return ErrCodeAlreadyUsed
		}

		short, err := s.newShortCode(tx)
		if err != nil {
			return err
		}

		o := &model.Order{
			ShortCode: short,
			Code:      code,
			Nickname:  in.Nickname,
			UserRef:   in.UserRef,
			ItemRef:   in.ItemRef,
			ItemURL:   in.ItemURL,
			Status:    model.OrderStatusQueued,
		}
		if err := tx.Create(o).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrConflict
			}
			return err
		}

		// Conditional write: only flips the row if it is still active.
		// Losing this race rolls the order insert back with the tx.
		now := time.Now()
		res := tx.Model(&model.Code{}).
			Where("code = ? AND status = ?", code, model.CodeStatusActive).
			Updates(map[string]interface{}{
				"status":  model.CodeStatusUsed,
				"used_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCodeAlreadyUsed
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// OrderByShortCode looks an order up by its public tracking token.
func (s *RedemptionService) OrderByShortCode(short string) (*model.Order, error) {
	short = NormalizeCode(short)
	if short == "" {
		return nil, ErrOrderNotFound
	}
	var order model.Order
	if err := s.db.First(&order, "short_code = ? AND deleted_at IS NULL", short).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// newShortCode draws a random tracking token and verifies it is not taken.
// The token space makes collisions unlikely; the orders unique index is
// still the final authority.
func (s *RedemptionService) newShortCode(tx *gorm.DB) (string, error) {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		var b [shortCodeLen]byte
		if _, err := io.ReadFull(s.rand, b[:]); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out := make([]byte, shortCodeLen)
		for j, c := range b {
			out[j] = CodeAlphabet[int(c)%len(CodeAlphabet)]
		}
		short := string(out)

		var count int64
		if err := tx.Model(&model.Order{}).Where("short_code = ?", short).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return short, nil
		}
	}
	return "", ErrConflict
}

// UpdateOrderStatus overwrites an order's status on behalf of the
// fulfillment operator. Only the defined states are accepted.
func UpdateOrderStatus(db *gorm.DB, id, status string) (*model.Order, error) {
	if !model.ValidOrderStatus(status) {
		return nil, fmt.Errorf("invalid order status %q", status)
	}
	var order model.Order
	if err := db.First(&order, "id = ? AND deleted_at IS NULL", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if err := db.Model(&order).Update("status", status).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
