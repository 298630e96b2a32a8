package user

import (
	"time"
)

// User 是 users 表的 GORM 模型。
// Role 单值（customer / admin），未登录访客不落库。
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string    `gorm:"size:128;not null"`
	PasswordSalt string    `gorm:"size:64;not null"`
	Nickname     string    `gorm:"size:64"`
	Email        string    `gorm:"size:128"`
	Role         string    `gorm:"size:16;not null;default:'customer'"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
