package booking

import "time"

// Status 预订状态枚举（持久化为字符串）。
type Status string

const (
	StatusPending   Status = "pending"   // 已创建，待确认（预留给未来的支付环节）
	StatusConfirmed Status = "confirmed" // 已确认，占用档期
	StatusCompleted Status = "completed" // 已完成（还车日已过）
	StatusCancelled Status = "cancelled" // 已取消（软删除，保留审计记录）
)

// Terminal 是否终态。终态预订不再参与档期冲突判定，也不允许再流转。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active 是否占用档期（pending / confirmed）。
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Reservation 预订 GORM 模型。
//
// 不变量：
// - ReturnDate > PickupDate（按日历日，至少 1 天）
// - TotalPriceCents 在创建时按当时的日租金冻结，之后不再变化
// - 同一车辆的 active 预订在 [PickupDate, ReturnDate) 上两两不重叠
// - 预订只会被流转为 cancelled，从不物理删除
type Reservation struct {
	ID string `gorm:"primaryKey;size:36"`

	// 业务关联
	VehicleID string `gorm:"index:idx_resv_vehicle_status,priority:1;size:36;not null"` // 预订车辆
	UserID    string `gorm:"index;size:36;not null"`                                    // 下单用户

	// 档期（半开区间 [pickup, return)，UTC 日历日）
	PickupDate time.Time `gorm:"type:date;not null"`
	ReturnDate time.Time `gorm:"type:date;not null"`

	// 金额信息（单位：分），创建时冻结
	TotalPriceCents int64  `gorm:"not null"`
	Currency        string `gorm:"size:8;not null;default:'USD'"`

	Status Status `gorm:"type:varchar(16);index:idx_resv_vehicle_status,priority:2;not null"`

	// 乐观锁版本号：状态更新必须携带期望版本
	Version int `gorm:"not null;default:1"`

	// 幂等键：由 (user, vehicle, pickup, return) 派生，
	// 存储层靠唯一索引对重试写去重
	IdempotencyKey string `gorm:"uniqueIndex;size:40;not null"`

	// 时间信息
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	ConfirmedAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// Range 返回预订的档期区间。
func (r *Reservation) Range() DateRange {
	return DateRange{Pickup: r.PickupDate, Return: r.ReturnDate}
}
