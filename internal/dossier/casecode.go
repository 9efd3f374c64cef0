package dossier

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/d9705996/clientportal/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CaseCodePrefix marks codes issued by this system.
const CaseCodePrefix = "CQ-"

// CaseCodePattern matches a well-formed case code.
var CaseCodePattern = regexp.MustCompile(`^CQ-[0-9]{4}-[0-9]+$`)

// CodeGenerator issues fresh case codes.
type CodeGenerator interface {
	Next(ctx context.Context) (string, error)
}

// CounterCodes issues CQ-<year>-<seq> codes from a per-year counter row.
// The counter increment runs in its own transaction so every caller gets a
// distinct sequence number.
type CounterCodes struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCounterCodes returns a generator backed by the case_code_counters table.
func NewCounterCodes(db *gorm.DB) *CounterCodes {
	return &CounterCodes{db: db, now: time.Now}
}

// Next reserves the next sequence number for the current year.
func (c *CounterCodes) Next(ctx context.Context) (string, error) {
	year := c.now().Year()
	var seq int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.CaseCodeCounter{Year: year, Next: 1}).Error; err != nil {
			return fmt.Errorf("init counter: %w", err)
		}
		if err := tx.Model(&model.CaseCodeCounter{}).
			Where("year = ?", year).
			Update("next", gorm.Expr("next + 1")).Error; err != nil {
			return fmt.Errorf("bump counter: %w", err)
		}
		var row model.CaseCodeCounter
		if err := tx.Where("year = ?", year).First(&row).Error; err != nil {
			return fmt.Errorf("read counter: %w", err)
		}
		seq = row.Next - 1
		return nil
	})
	if err != nil {
		return "", err
	}
	return FormatCaseCode(year, seq), nil
}

// FormatCaseCode renders a case code; the sequence is zero-padded to six digits.
func FormatCaseCode(year int, seq int64) string {
	return fmt.Sprintf("%s%d-%06d", CaseCodePrefix, year, seq)
}
