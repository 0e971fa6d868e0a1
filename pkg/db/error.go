package db

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFound hides the gorm sentinel from callers outside the repositories.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
