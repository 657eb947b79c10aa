package database

import (
	"context"

	"gorm.io/gorm"
)

// Paginate applies page/perPage as offset and limit; perPage is capped at maxPerPage
func Paginate(page, perPage, maxPerPage int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		if perPage < 1 {
			perPage = 10
		}
		if maxPerPage > 0 && perPage > maxPerPage {
			perPage = maxPerPage
		}
		return db.Offset((page - 1) * perPage).Limit(perPage)
	}
}

// WhereIf conditionally adds a where clause
func WhereIf(condition bool, query any, args ...any) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if condition {
			return db.Where(query, args...)
		}
		return db
	}
}

// Exists checks if a record matching the query exists
func Exists(ctx context.Context, db *gorm.DB, model any, query any, args ...any) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(model).Where(query, args...).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
