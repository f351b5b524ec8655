package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isDuplicateKey reports a unique constraint violation. Drivers translate
// these to gorm.ErrDuplicatedKey; the message check covers driver builds
// without a translator.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
