package service

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"codeshop/internal/model"
)

// Generation bounds. The attempt cap protects against alphabet space
// exhaustion or pathological collision rates instead of looping forever.
const (
	GenBatchSize     = 100
	GenMaxAttempts   = 50
	GenSnapshotLimit = 10000
	GenMaxCount      = 1000
)

// CodeGenerator produces batches of globally unique redemption codes and
// persists them as active rows. Uniqueness is decided against storage; the
// in-memory snapshot is only a best-effort pre-filter.
type CodeGenerator struct {
	db *gorm.DB

	// random source, swappable in tests
	rand io.Reader
}

func NewCodeGenerator(db *gorm.DB) *CodeGenerator {
	return &CodeGenerator{db: db, rand: rand.Reader}
}

// randomCode draws 8 cryptographically random bytes, maps each to an
// alphabet symbol and assembles a checksummed code.
func (g *CodeGenerator) randomCode(prefix string) (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(g.rand, b[:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	var body strings.Builder
	for _, c := range b {
		body.WriteByte(CodeAlphabet[int(c)%len(CodeAlphabet)])
	}
	s := body.String()
	return EncodeCode(prefix, s[:4], s[4:]), nil
}

// existingCodes fetches a bounded snapshot of stored code texts to use as
// a local membership pre-filter.
func (g *CodeGenerator) existingCodes() (map[string]struct{}, error) {
	var texts []string
	if err := g.db.Model(&model.Code{}).Limit(GenSnapshotLimit).Pluck("code", &texts).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		set[t] = struct{}{}
	}
	return set, nil
}

// filterStored removes candidates already present in storage. This is the
// authoritative re-check: the snapshot may be stale or incomplete.
func (g *CodeGenerator) filterStored(batch []string) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	var taken []string
	if err := g.db.Model(&model.Code{}).Where("code IN ?", batch).Pluck("code", &taken).Error; err != nil {
		return nil, err
	}
	takenSet := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		takenSet[t] = struct{}{}
	}
	out := batch[:0]
	for _, c := range batch {
		if _, ok := takenSet[c]; !ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Generate creates count active codes with the given nominal and prefix
// and bulk-inserts them. On failure nothing is committed: the attempt
// bound surfaces as ErrGenerationExhausted rather than a silent partial
// result.
func (g *CodeGenerator) Generate(count, nominal int, prefix string) ([]string, string, error) {
	if count < 1 || count > GenMaxCount {
		return nil, "", fmt.Errorf("%w: count %d (must be 1-%d)", ErrInvalidInput, count, GenMaxCount)
	}
	if nominal < 1 {
		return nil, "", fmt.Errorf("%w: nominal %d", ErrInvalidInput, nominal)
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !IsValidPrefix(prefix) {
		return nil, "", fmt.Errorf("%w: prefix %q", ErrInvalidInput, prefix)
	}

	existing, err := g.existingCodes()
	if err != nil {
		return nil, "", fmt.Errorf("failed to snapshot existing codes: %w", err)
	}

	accepted := make([]string, 0, count)
	attempts := 0
	for len(accepted) < count {
		if attempts >= GenMaxAttempts*count {
			return nil, "", ErrGenerationExhausted
		}
		attempts++

		batch := make([]string, 0, GenBatchSize)
		seen := make(map[string]struct{}, GenBatchSize)
		need := count - len(accepted)
		if need > GenBatchSize {
			need = GenBatchSize
		}
		for i := 0; i < need; i++ {
			code, err := g.randomCode(prefix)
			if err != nil {
				return nil, "", err
			}
			if _, dup := existing[code]; dup {
				continue
			}
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			batch = append(batch, code)
		}

		unique, err := g.filterStored(batch)
		if err != nil {
			return nil, "", fmt.Errorf("failed to verify batch uniqueness: %w", err)
		}
		for _, code := range unique {
			accepted = append(accepted, code)
			existing[code] = struct{}{}
		}
	}

	batchID, err := g.newBatchID()
	if err != nil {
		return nil, "", err
	}

	rows := make([]model.Code, 0, len(accepted))
	for _, code := range accepted {
		rows = append(rows, model.Code{
			Code:    code,
			Nominal: nominal,
			Status:  model.CodeStatusActive,
			BatchID: &batchID,
		})
	}
	if err := g.db.Create(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("failed to insert generated codes: %w", err)
	}

	zap.L().Info("generated codes",
		zap.Int("count", len(accepted)),
		zap.Int("nominal", nominal),
		zap.String("prefix", prefix),
		zap.String("batch_id", batchID),
	)

	return accepted, batchID, nil
}

// newBatchID creates a unique identifier for a generation batch.
func (g *CodeGenerator) newBatchID() (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(g.rand, b[:]); err != nil {
		return "", err
	}
	encoded := strings.TrimRight(base32.StdEncoding.EncodeToString(b[:]), "=")
	return fmt.Sprintf("BATCH_%d_%s", time.Now().Unix(), encoded), nil
}

// CreateCode is the manual single-code path. The storage unique constraint
// is the final authority; a duplicate surfaces as ErrDuplicateExists.
func CreateCode(db *gorm.DB, text string, nominal int, status string) (*model.Code, error) {
	code := NormalizeCode(text)
	if !IsWellFormed(code) {
		return nil, ErrInvalidFormat
	}
	if !VerifyChecksum(code) {
		return nil, ErrInvalidChecksum
	}
	if status == "" {
		status = model.CodeStatusActive
	}
	if status != model.CodeStatusActive && status != model.CodeStatusUsed {
		return nil, fmt.Errorf("invalid code status %q", status)
	}

	var count int64
	if err := db.Model(&model.Code{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateExists
	}

	row := &model.Code{Code: code, Nominal: nominal, Status: status}
	if status == model.CodeStatusUsed {
		now := time.Now()
		row.UsedAt = &now
	}
	if err := db.Create(row).Error; err != nil {
		if isDuplicateKey(err) {
			// lost a last-moment race with a concurrent insert
			return nil, ErrDuplicateExists
		}
		return nil, err
	}
	return row, nil
}

// DeleteCode removes an active code. Used codes are part of order history
// and must never be deleted. The delete is physical: the code text becomes
// available again for import or manual re-creation.
func DeleteCode(db *gorm.DB, id string) error {
	var row model.Code
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeNotFound
		}
		return err
	}
	if row.Status == model.CodeStatusUsed {
		return ErrCodeAlreadyUsed
	}
	return db.Where("id = ?", id).Delete(&model.Code{}).Error
}
