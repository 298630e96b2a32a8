package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ListFilter 预订查询条件。
type ListFilter struct {
	UserID    string
	VehicleID string
	Status    Status
	Offset    int
	Limit     int
}

// Repository 预订存储接口。Service 只依赖该接口，测试用内存实现替换。
type Repository interface {
	// CreateIfNoConflict 原子地完成"档期冲突检查 + 插入"。
	// 与同车辆的其他写入串行；存在重叠的 active 预订时返回 ErrDateConflict。
	// 幂等键重复时返回已存在的那条预订（客户端超时重试场景）。
	CreateIfNoConflict(ctx context.Context, r *Reservation) (*Reservation, error)

	FindByID(ctx context.Context, id string) (*Reservation, error)

	// FindActiveOverlapping 查询与 rng 重叠的 active 预订，可排除指定预订
	// （状态流转时复核档期用）。
	FindActiveOverlapping(ctx context.Context, vehicleID string, rng DateRange, excludeID string) ([]Reservation, error)

	// UpdateStatus 乐观锁状态更新：版本不匹配返回 ErrConflict，
	// 记录不存在返回 ErrNotFound。
	UpdateStatus(ctx context.Context, id string, expectedVersion int, to Status, now time.Time) (*Reservation, error)

	// List 按过滤条件查询，created_at 倒序（最新在前）。
	List(ctx context.Context, f ListFilter) ([]Reservation, error)

	// CompleteExpired 将还车日已过的 confirmed 预订批量流转为 completed，
	// 返回本次流转的数量。可重复调用（幂等）。
	CompleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Repo Repository 的 GORM/MySQL 实现。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var _ Repository = (*Repo)(nil)

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) CreateIfNoConflict(ctx context.Context, resv *Reservation) (*Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	var out *Reservation
	err := db.Transaction(func(tx *gorm.DB) error {
		// 对车辆行加排它锁：同一车辆的并发创建在此串行化，
		// 使"检查 + 插入"对其他写入者表现为单个原子操作
		var lockedID string
		if err := tx.Raw("SELECT id FROM vehicles WHERE id = ? FOR UPDATE", resv.VehicleID).
			Scan(&lockedID).Error; err != nil {
			return err
		}
		if lockedID == "" {
			return ErrNotFound
		}

		// 幂等回放先于冲突检查：客户端超时重试同一请求时，
		// 返回最初创建的那条预订而不是对自己报冲突
		var existing Reservation
		ferr := tx.Where("idempotency_key = ?", resv.IdempotencyKey).First(&existing).Error
		if ferr == nil {
			out = &existing
			return nil
		}
		if !errors.Is(ferr, gorm.ErrRecordNotFound) {
			return ferr
		}

		var n int64
		if err := tx.Model(&Reservation{}).
			Where("vehicle_id = ? AND status IN ?", resv.VehicleID, []Status{StatusPending, StatusConfirmed}).
			Where("pickup_date < ? AND return_date > ?", resv.ReturnDate, resv.PickupDate).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDateConflict
		}

		if err := tx.Create(resv).Error; err != nil {
			return err
		}
		out = resv
		return nil
	})
	if err == nil {
		return out, nil
	}

	if isDuplicateKey(err) {
		// 车辆行锁之外的写入路径撞上唯一索引（如手工补录），兜底回放
		var existing Reservation
		if ferr := db.Where("idempotency_key = ?", resv.IdempotencyKey).First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, ErrDateConflict
	}
	return nil, err
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var resv Reservation
	if err := db.Where("id = ?", id).First(&resv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &resv, nil
}

func (r *Repo) FindActiveOverlapping(ctx context.Context, vehicleID string, rng DateRange, excludeID string) ([]Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	q := db.Where("vehicle_id = ? AND status IN ?", vehicleID, []Status{StatusPending, StatusConfirmed}).
		Where("pickup_date < ? AND return_date > ?", rng.Return, rng.Pickup)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var out []Reservation
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, expectedVersion int, to Status, now time.Time) (*Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	updates := map[string]interface{}{
		"status":  to,
		"version": expectedVersion + 1,
	}
	switch to {
	case StatusConfirmed:
		updates["confirmed_at"] = now
	case StatusCompleted:
		updates["completed_at"] = now
	case StatusCancelled:
		updates["cancelled_at"] = now
		// 取消即退役幂等键：同一用户之后重新预订同一车辆同一档期，
		// 不会撞上这条已取消记录的唯一索引
		updates["idempotency_key"] = "c:" + id
	}

	res := db.Model(&Reservation{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// 版本不匹配或记录不存在：区分后返回对应错误，
		// 并发修改必须交还调用方决定是否重试，不做静默覆盖
		var exists Reservation
		if err := db.Where("id = ?", id).First(&exists).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return nil, ErrConflict
	}

	return r.FindByID(ctx, id)
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Reservation, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&Reservation{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var out []Reservation
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}

	res := db.Model(&Reservation{}).
		Where("status = ? AND return_date <= ?", StatusConfirmed, truncateToDay(now)).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"completed_at": now,
			"version":      gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// isDuplicateKey 识别 MySQL 唯一索引冲突（errno 1062）。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
