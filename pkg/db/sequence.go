package db

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidSequence = errors.New("invalid_sequence")

// Sequence is a named monotonic counter. Ids handed out by a sequence are
// never reused, and a single reservation is contiguous.
type Sequence struct {
	Name  string `gorm:"primaryKey;type:varchar(64)"`
	Value int64  `gorm:"not null;default:0"`
}

func (Sequence) TableName() string { return "id_sequences" }

// NextIDs reserves n consecutive ids from the named sequence and returns the
// first one. It must run inside the caller's transaction so the reservation
// rolls back with it.
func NextIDs(ctx context.Context, tx *gorm.DB, name string, n int64) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" || n <= 0 {
		return 0, ErrInvalidSequence
	}

	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Sequence{Name: name}).Error; err != nil {
		return 0, err
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE id_sequences SET value = value + ? WHERE name = ?`,
		n,
		name,
	).Error; err != nil {
		return 0, err
	}

	var value int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT value FROM id_sequences WHERE name = ?`,
		name,
	).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value - n + 1, nil
}
