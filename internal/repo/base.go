package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by gorm-backed repositories. It carries either the pool
// or the transaction the caller opened, so one repository type serves both.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns it unbound.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx returns a Base bound to tx, or b itself when tx is nil.
func (b Base) Tx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}
