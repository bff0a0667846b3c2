// internal/storage/models/base.go
package models

import "time"

// BaseModel заменяет gorm.Model: записи леджера никогда не удаляются,
// поэтому soft delete не нужен.
type BaseModel struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}
