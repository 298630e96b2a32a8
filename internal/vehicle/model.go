package vehicle

import (
	"strings"
	"time"
)

// Vehicle 是 vehicles 表的 GORM 模型（车队目录）。
type Vehicle struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Brand          string    `gorm:"index;size:64;not null"`
	Model          string    `gorm:"size:64;not null"`
	Year           int       `gorm:"not null"`
	DailyRateCents int64     `gorm:"not null"` // 日租金（分），必须为正
	Currency       string    `gorm:"size:8;not null;default:'USD'"`
	Description    string    `gorm:"size:1024"`
	ImageURL       string    `gorm:"size:512"`
	Transmission   string    `gorm:"size:32"` // automatic / manual
	Seats          int       `gorm:"not null;default:4"`
	FuelType       string    `gorm:"size:32"`
	Features       string    `gorm:"size:1024"` // 逗号分隔，例如 "GPS,Bluetooth"
	IsAvailable    bool      `gorm:"not null;default:true;index"` // 车队级上架标记，与档期无关
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// FeaturesSlice 把逗号分隔的配置项拆为切片。
func (v Vehicle) FeaturesSlice() []string {
	if strings.TrimSpace(v.Features) == "" {
		return nil
	}
	parts := strings.Split(v.Features, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FeaturesJoin 把配置项切片拼回存储格式。
func FeaturesJoin(features []string) string {
	if len(features) == 0 {
		return ""
	}
	out := make([]string, 0, len(features))
	for _, f := range features {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, ",")
}
