package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyOrder orders results by column; direction defaults to asc.
func ApplyOrder(column, direction string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column = strings.TrimSpace(column)
		if column == "" {
			return db
		}
		dir := strings.ToLower(strings.TrimSpace(direction))
		if dir != "desc" {
			dir = "asc"
		}
		return db.Order(fmt.Sprintf("%s %s", column, dir))
	})
}

// WithQuerySortBy returns an order option only for allow-listed columns.
func WithQuerySortBy(sortBy, orderBy string, allowed map[string]bool) QueryOption {
	sortBy = strings.ToLower(strings.TrimSpace(sortBy))
	if !allowed[sortBy] {
		return queryOptionFunc(func(db *gorm.DB) *gorm.DB { return db })
	}
	return ApplyOrder(sortBy, orderBy)
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithWhere(query string, args ...any) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}
