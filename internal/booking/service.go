package booking

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NeoDrive/NeoDrive/internal/common/config"
	"github.com/NeoDrive/NeoDrive/internal/common/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// CatalogVehicle 预订引擎消费的车辆视图。
type CatalogVehicle struct {
	ID             string
	DailyRateCents int64
	Currency       string
	FleetAvailable bool // 车队级上架标记，与档期无关
}

// Catalog 车辆目录协作方。车辆不存在时返回 ErrNotFound。
type Catalog interface {
	GetVehicle(ctx context.Context, id string) (*CatalogVehicle, error)
}

// Service 封装预订领域的核心用例（不依赖 HTTP），便于复用和测试。
// 调用链：授权 -> 车辆/档期校验 -> 计价 -> 原子写入 -> 状态流转。
type Service struct {
	repo    Repository
	catalog Catalog
	checker *AvailabilityChecker
	log     logger.Logger
	cfg     config.BookingConfig
	clock   func() time.Time
}

func NewService(repo Repository, catalog Catalog, log logger.Logger, cfg config.BookingConfig) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		checker: NewAvailabilityChecker(repo),
		log:     log,
		cfg:     cfg,
		clock:   time.Now,
	}
}

// WithClock 替换时钟（测试用）。
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// IdempotencyKey 由请求参数确定性派生的去重键：
// 同一用户对同一车辆同一档期的重试写会撞上存储层唯一索引。
func IdempotencyKey(userID, vehicleID string, rng DateRange) string {
	h := sha1.Sum([]byte(strings.Join([]string{
		userID,
		vehicleID,
		rng.Pickup.Format(DateFormat),
		rng.Return.Format(DateFormat),
	}, "|")))
	return hex.EncodeToString(h[:])
}

// CreateReservation 创建预订。
// 没有支付环节，且存储层的冲突检查与插入是单个原子单元，
// 因此新预订直接落在 confirmed，无需经过 pending。
func (s *Service) CreateReservation(ctx context.Context, p Principal, vehicleID string, rng DateRange) (*Reservation, error) {
	// 授权先行：任何校验、任何会暴露他人数据的查询都在其之后
	if err := Authorize(p, ActionCreateReservation, nil); err != nil {
		return nil, err
	}
	if strings.TrimSpace(vehicleID) == "" {
		return nil, ErrNotFound
	}

	var v *CatalogVehicle
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		v, e = s.catalog.GetVehicle(c, vehicleID)
		return e
	}); err != nil {
		return nil, err
	}
	if !v.FleetAvailable {
		return nil, ErrVehicleUnavailable
	}

	price, err := Quote(rng, v.DailyRateCents)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	confirmedAt := now
	currency := v.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	resv := &Reservation{
		ID:              uuid.NewString(),
		VehicleID:       vehicleID,
		UserID:          p.ID,
		PickupDate:      rng.Pickup,
		ReturnDate:      rng.Return,
		TotalPriceCents: price,
		Currency:        strings.ToUpper(currency),
		Status:          StatusConfirmed,
		Version:         1,
		IdempotencyKey:  IdempotencyKey(p.ID, vehicleID, rng),
		ConfirmedAt:     &confirmedAt,
	}

	var created *Reservation
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		created, e = s.repo.CreateIfNoConflict(c, resv)
		return e
	}); err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"reservation_id": created.ID,
			"vehicle_id":     created.VehicleID,
			"range":          created.Range().String(),
			"total_cents":    created.TotalPriceCents,
		}).Info("reservation confirmed")
	}
	return created, nil
}

// ListReservations 按过滤条件查询预订，最新在前。
// 非 admin 强制只能看到自己的记录。
func (s *Service) ListReservations(ctx context.Context, p Principal, f ListFilter) ([]Reservation, error) {
	if p.Role != RoleAdmin {
		if p.Role != RoleCustomer || p.ID == "" {
			return nil, ErrUnauthorized
		}
		f.UserID = p.ID
	}

	var out []Reservation
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		out, e = s.repo.List(c, f)
		return e
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReservation 查询单条预订（本人或 admin）。
func (s *Service) GetReservation(ctx context.Context, p Principal, id string) (*Reservation, error) {
	resv, err := s.loadReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(p, ActionViewReservation, resv); err != nil {
		return nil, err
	}
	return resv, nil
}

// CancelReservation 取消预订（本人非终态预订，或 admin 任意非终态预订）。
// 乐观锁：记录在读取与写入之间被并发修改时返回 ErrConflict。
func (s *Service) CancelReservation(ctx context.Context, p Principal, id string) (*Reservation, error) {
	resv, err := s.loadReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(p, ActionCancelReservation, resv); err != nil {
		return nil, err
	}

	now := s.clock()
	staged := *resv
	if err := ApplyTransition(&staged, StatusCancelled, now); err != nil {
		return nil, err
	}

	var updated *Reservation
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		updated, e = s.repo.UpdateStatus(c, resv.ID, resv.Version, StatusCancelled, now)
		return e
	}); err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.WithField("reservation_id", updated.ID).Info("reservation cancelled")
	}
	return updated, nil
}

// ForceTransition admin 专用：把单条预订强制推进到指定状态。
// 推进到 confirmed 前排除自身复核档期，避免确认一条已与他人冲突的记录。
func (s *Service) ForceTransition(ctx context.Context, p Principal, id string, to Status) (*Reservation, error) {
	if p.Role != RoleAdmin {
		return nil, ErrUnauthorized
	}
	resv, err := s.loadReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	staged := *resv
	if err := ApplyTransition(&staged, to, now); err != nil {
		return nil, err
	}

	if to == StatusConfirmed {
		var ok bool
		if err := s.runStorage(ctx, func(c context.Context) error {
			var e error
			ok, e = s.checker.IsAvailable(c, resv.VehicleID, resv.Range(), resv.ID)
			return e
		}); err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDateConflict
		}
	}

	var updated *Reservation
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		updated, e = s.repo.UpdateStatus(c, resv.ID, resv.Version, to, now)
		return e
	}); err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"reservation_id": updated.ID,
			"status":         updated.Status,
		}).Info("reservation status forced")
	}
	return updated, nil
}

// CompleteExpiredReservations 将还车日已过的 confirmed 预订流转为 completed。
// 幂等：重复调用不改变最终状态，第二次返回 0。
func (s *Service) CompleteExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		count, e = s.repo.CompleteExpired(c, now)
		return e
	}); err != nil {
		return 0, err
	}

	if count > 0 && s.log != nil {
		s.log.WithField("count", count).Info("expired reservations completed")
	}
	return count, nil
}

// CheckAvailability 无锁档期探测（列表页/详情页用）。
// 结果允许与在途写入短暂不一致，防冲突以创建时的原子写入为准。
func (s *Service) CheckAvailability(ctx context.Context, vehicleID string, rng DateRange) (bool, error) {
	var ok bool
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		ok, e = s.checker.IsAvailable(c, vehicleID, rng, "")
		return e
	}); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Service) loadReservation(ctx context.Context, id string) (*Reservation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	var resv *Reservation
	if err := s.runStorage(ctx, func(c context.Context) error {
		var e error
		resv, e = s.repo.FindByID(c, id)
		return e
	}); err != nil {
		return nil, err
	}
	return resv, nil
}

// runStorage 对单次存储调用施加超时，并对瞬时故障重试一次（固定退避）。
// 领域错误（冲突/未找到/未授权等）是永久失败，绝不重试 ——
// 对真实的档期冲突重试没有意义，必须交还用户改期。
func (s *Service) runStorage(ctx context.Context, op func(context.Context) error) error {
	attempt := func() error {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout())
		defer cancel()

		err := op(opCtx)
		if err == nil {
			return nil
		}
		if isDomainErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryBackoff()), 1),
		ctx,
	)
	err := backoff.Retry(attempt, bo)
	if err == nil {
		return nil
	}
	if isDomainErr(err) {
		return err
	}

	// 重试后仍失败的基础设施错误，归一化为 Timeout / ServiceUnavailable
	if s.log != nil {
		s.log.WithError(err).Warn("storage call failed after retry")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s", ErrServiceUnavailable, err)
}

// isDomainErr 判断是否为领域分类错误（永久失败，不重试）。
func isDomainErr(err error) bool {
	for _, target := range []error{
		ErrInvalidRange, ErrInvalidRate, ErrDateConflict, ErrVehicleUnavailable,
		ErrNotFound, ErrUnauthorized, ErrAlreadyTerminal, ErrNotConfirmed, ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
