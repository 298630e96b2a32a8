package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeoDrive/NeoDrive/internal/common/config"
)

// memRepo Repository 的内存实现，互斥锁模拟存储层的
// "检查 + 插入"原子性与车辆级串行化。
type memRepo struct {
	mu       sync.Mutex
	vehicles map[string]bool
	items    map[string]*Reservation
	seq      int
}

func newMemRepo(vehicleIDs ...string) *memRepo {
	vs := make(map[string]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		vs[id] = true
	}
	return &memRepo{vehicles: vs, items: make(map[string]*Reservation)}
}

func (m *memRepo) CreateIfNoConflict(_ context.Context, r *Reservation) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.vehicles[r.VehicleID] {
		return nil, ErrNotFound
	}
	for _, it := range m.items {
		if it.IdempotencyKey == r.IdempotencyKey {
			cp := *it
			return &cp, nil
		}
	}
	rng := r.Range()
	for _, it := range m.items {
		if it.VehicleID == r.VehicleID && it.Status.Active() && it.Range().Overlaps(rng) {
			return nil, ErrDateConflict
		}
	}

	m.seq++
	cp := *r
	cp.CreatedAt = time.Unix(int64(m.seq), 0) // 保证 List 排序稳定
	m.items[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) FindByID(_ context.Context, id string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memRepo) FindActiveOverlapping(_ context.Context, vehicleID string, rng DateRange, excludeID string) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, it := range m.items {
		if it.ID == excludeID {
			continue
		}
		if it.VehicleID == vehicleID && it.Status.Active() && it.Range().Overlaps(rng) {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id string, expectedVersion int, to Status, now time.Time) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if it.Version != expectedVersion {
		return nil, ErrConflict
	}
	it.Status = to
	it.Version++
	switch to {
	case StatusConfirmed:
		it.ConfirmedAt = &now
	case StatusCompleted:
		it.CompletedAt = &now
	case StatusCancelled:
		it.CancelledAt = &now
		it.IdempotencyKey = "c:" + id
	}
	cp := *it
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, it := range m.items {
		if f.UserID != "" && it.UserID != f.UserID {
			continue
		}
		if f.VehicleID != "" && it.VehicleID != f.VehicleID {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) CompleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := truncateToDay(now)
	var n int64
	for _, it := range m.items {
		if it.Status == StatusConfirmed && !it.ReturnDate.After(day) {
			it.Status = StatusCompleted
			it.CompletedAt = &now
			it.Version++
			n++
		}
	}
	return n, nil
}

func (m *memRepo) get(id string) *Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

var _ Repository = (*memRepo)(nil)

type stubCatalog struct {
	vehicles map[string]CatalogVehicle
}

func (c *stubCatalog) GetVehicle(_ context.Context, id string) (*CatalogVehicle, error) {
	v, ok := c.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		Currency:           "USD",
		StorageTimeoutSec:  1,
		RetryBackoffMillis: 1,
	}
}

func newTestService(repo Repository) *Service {
	catalog := &stubCatalog{vehicles: map[string]CatalogVehicle{
		"veh-suv":  {ID: "veh-suv", DailyRateCents: 50000, Currency: "USD", FleetAvailable: true},
		"veh-down": {ID: "veh-down", DailyRateCents: 30000, Currency: "USD", FleetAvailable: false},
	}}
	return NewService(repo, catalog, nil, testBookingConfig()).
		WithClock(func() time.Time { return time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC) })
}

var (
	alice = Principal{ID: "user-alice", Role: RoleCustomer}
	bob   = Principal{ID: "user-bob", Role: RoleCustomer}
	root  = Principal{ID: "user-root", Role: RoleAdmin}
)

func TestCreateReservationConfirmsAndPrices(t *testing.T) {
	repo := newMemRepo("veh-suv", "veh-down")
	svc := newTestService(repo)
	ctx := context.Background()

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, resv.Status)
	assert.Equal(t, int64(150000), resv.TotalPriceCents) // $500/day × 3 days
	assert.Equal(t, "USD", resv.Currency)
	assert.Equal(t, "user-alice", resv.UserID)
	assert.Equal(t, 1, resv.Version)
	assert.NotEmpty(t, resv.IdempotencyKey)
	require.NotNil(t, resv.ConfirmedAt)
}

func TestCreateReservationRejectsGuest(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))

	_, err := svc.CreateReservation(context.Background(), Principal{Role: RoleGuest}, "veh-suv",
		mustRange(t, "2024-06-01", "2024-06-04"))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateReservationVehicleChecks(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv", "veh-down"))
	ctx := context.Background()
	rng := mustRange(t, "2024-06-01", "2024-06-04")

	_, err := svc.CreateReservation(ctx, alice, "veh-ghost", rng)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CreateReservation(ctx, alice, "veh-down", rng)
	assert.ErrorIs(t, err, ErrVehicleUnavailable)
}

func TestCreateReservationConflictAndAdjacency(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()

	_, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-05"))
	require.NoError(t, err)

	// 区间重叠：另一用户同档期被拒
	_, err = svc.CreateReservation(ctx, bob, "veh-suv", mustRange(t, "2024-06-03", "2024-06-07"))
	assert.ErrorIs(t, err, ErrDateConflict)

	// 半开区间：还车日当天取车的背靠背预订放行
	_, err = svc.CreateReservation(ctx, bob, "veh-suv", mustRange(t, "2024-06-05", "2024-06-08"))
	assert.NoError(t, err)
}

func TestCreateReservationIdempotentReplay(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()
	rng := mustRange(t, "2024-06-01", "2024-06-04")

	first, err := svc.CreateReservation(ctx, alice, "veh-suv", rng)
	require.NoError(t, err)

	// 客户端超时重试同一请求：返回最初那条，而不是对自己报冲突
	second, err := svc.CreateReservation(ctx, alice, "veh-suv", rng)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCancelFreesTheRange(t *testing.T) {
	repo := newMemRepo("veh-suv")
	svc := newTestService(repo)
	ctx := context.Background()
	rng := mustRange(t, "2024-06-01", "2024-06-05")

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", rng)
	require.NoError(t, err)

	// 他人不能取消
	_, err = svc.CancelReservation(ctx, bob, resv.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// admin 可以取消任意预订
	cancelled, err := svc.CancelReservation(ctx, root, resv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	// 取消后档期释放：他人可订
	_, err = svc.CreateReservation(ctx, bob, "veh-suv", mustRange(t, "2024-06-02", "2024-06-04"))
	assert.NoError(t, err)
}

func TestRebookSameRangeAfterOwnCancel(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()
	rng := mustRange(t, "2024-07-01", "2024-07-03")

	first, err := svc.CreateReservation(ctx, alice, "veh-suv", rng)
	require.NoError(t, err)
	_, err = svc.CancelReservation(ctx, alice, first.ID)
	require.NoError(t, err)

	// 幂等键随取消退役：重订得到一条全新的 confirmed 预订
	second, err := svc.CreateReservation(ctx, alice, "veh-suv", rng)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, StatusConfirmed, second.Status)
}

func TestCancelTerminalReservation(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)
	_, err = svc.CancelReservation(ctx, alice, resv.ID)
	require.NoError(t, err)

	_, err = svc.CancelReservation(ctx, alice, resv.ID)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestCancelConcurrentModification(t *testing.T) {
	repo := newMemRepo("veh-suv")
	racing := &racingRepo{memRepo: repo}
	svc := newTestService(racing)
	ctx := context.Background()

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)

	_, err = svc.CancelReservation(ctx, alice, resv.ID)
	assert.ErrorIs(t, err, ErrConflict)
	// 领域错误是永久失败：不触发瞬时故障重试
	assert.Equal(t, 1, racing.updateCalls)
}

// racingRepo 在读取与写入之间模拟一个抢先提交的并发写入者。
type racingRepo struct {
	*memRepo
	updateCalls int
}

func (r *racingRepo) UpdateStatus(ctx context.Context, id string, expectedVersion int, to Status, now time.Time) (*Reservation, error) {
	r.updateCalls++
	r.mu.Lock()
	if it, ok := r.items[id]; ok {
		it.Version++
	}
	r.mu.Unlock()
	return r.memRepo.UpdateStatus(ctx, id, expectedVersion, to, now)
}

func TestConcurrentCreatesSingleWinner(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := Principal{ID: string(rune('a'+i)) + "-user", Role: RoleCustomer}
			_, err := svc.CreateReservation(ctx, p, "veh-suv", mustRange(t, "2024-08-10", "2024-08-12"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrDateConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
}

func TestListReservationsScoping(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()

	ra, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-03"))
	require.NoError(t, err)
	_, err = svc.CreateReservation(ctx, bob, "veh-suv", mustRange(t, "2024-06-03", "2024-06-05"))
	require.NoError(t, err)

	// 非 admin 强制只能看到自己的记录，过滤条件里的 UserID 被覆盖
	out, err := svc.ListReservations(ctx, alice, ListFilter{UserID: "user-bob"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ra.ID, out[0].ID)

	out, err = svc.ListReservations(ctx, root, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = svc.ListReservations(ctx, Principal{Role: RoleGuest}, ListFilter{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetReservationOwnership(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-03"))
	require.NoError(t, err)

	got, err := svc.GetReservation(ctx, alice, resv.ID)
	require.NoError(t, err)
	assert.Equal(t, resv.ID, got.ID)

	_, err = svc.GetReservation(ctx, bob, resv.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.GetReservation(ctx, root, "resv-ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckAvailability(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()

	ok, err := svc.CheckAvailability(ctx, "veh-suv", mustRange(t, "2024-06-01", "2024-06-05"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-05"))
	require.NoError(t, err)

	ok, err = svc.CheckAvailability(ctx, "veh-suv", mustRange(t, "2024-06-04", "2024-06-06"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.CheckAvailability(ctx, "veh-suv", mustRange(t, "2024-06-05", "2024-06-08"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepCompletesExpiredIdempotently(t *testing.T) {
	repo := newMemRepo("veh-suv")
	svc := newTestService(repo)
	ctx := context.Background()

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)

	// 还车日未到：不流转
	n, err := svc.CompleteExpiredReservations(ctx, time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.CompleteExpiredReservations(ctx, time.Date(2024, 6, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got := repo.get(resv.ID)
	require.NotNil(t, got)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.CompletedAt)

	// 幂等：第二次巡检不再改变任何记录
	n, err = svc.CompleteExpiredReservations(ctx, time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// flakyRepo 前 failures 次调用返回瞬时错误，之后委托给内存实现。
type flakyRepo struct {
	*memRepo
	failures    int
	createCalls int
}

func (f *flakyRepo) CreateIfNoConflict(ctx context.Context, r *Reservation) (*Reservation, error) {
	f.createCalls++
	if f.createCalls <= f.failures {
		return nil, errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")
	}
	return f.memRepo.CreateIfNoConflict(ctx, r)
}

func TestStorageRetriesTransientFailureOnce(t *testing.T) {
	flaky := &flakyRepo{memRepo: newMemRepo("veh-suv"), failures: 1}
	svc := newTestService(flaky)

	resv, err := svc.CreateReservation(context.Background(), alice, "veh-suv",
		mustRange(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, resv.Status)
	assert.Equal(t, 2, flaky.createCalls)
}

func TestStorageExhaustedRetriesBecomeServiceUnavailable(t *testing.T) {
	flaky := &flakyRepo{memRepo: newMemRepo("veh-suv"), failures: 10}
	svc := newTestService(flaky)

	_, err := svc.CreateReservation(context.Background(), alice, "veh-suv",
		mustRange(t, "2024-06-01", "2024-06-04"))
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, 2, flaky.createCalls) // 首次 + 一次重试，不再多试
}

// stuckRepo 模拟挂死的存储：阻塞到调用方超时。
type stuckRepo struct {
	*memRepo
}

func (s *stuckRepo) FindByID(ctx context.Context, id string) (*Reservation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStorageTimeoutIsClassified(t *testing.T) {
	svc := newTestService(&stuckRepo{memRepo: newMemRepo("veh-suv")})

	_, err := svc.GetReservation(context.Background(), root, "resv-1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRateChangeDoesNotRepriceExistingReservations(t *testing.T) {
	repo := newMemRepo("veh-suv")
	catalog := &stubCatalog{vehicles: map[string]CatalogVehicle{
		"veh-suv": {ID: "veh-suv", DailyRateCents: 50000, Currency: "USD", FleetAvailable: true},
	}}
	svc := NewService(repo, catalog, nil, testBookingConfig()).
		WithClock(func() time.Time { return time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)
	require.Equal(t, int64(150000), resv.TotalPriceCents)

	// 管理员调价：只影响之后创建的预订
	catalog.vehicles["veh-suv"] = CatalogVehicle{
		ID: "veh-suv", DailyRateCents: 80000, Currency: "USD", FleetAvailable: true,
	}

	got, err := svc.GetReservation(ctx, alice, resv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), got.TotalPriceCents)

	later, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-10", "2024-06-12"))
	require.NoError(t, err)
	assert.Equal(t, int64(160000), later.TotalPriceCents)
}

func TestForceTransitionAdminOnly(t *testing.T) {
	svc := newTestService(newMemRepo("veh-suv"))
	ctx := context.Background()

	resv, err := svc.CreateReservation(ctx, alice, "veh-suv", mustRange(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)

	_, err = svc.ForceTransition(ctx, alice, resv.ID, StatusCompleted)
	assert.ErrorIs(t, err, ErrUnauthorized)

	done, err := svc.ForceTransition(ctx, root, resv.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = svc.ForceTransition(ctx, root, resv.ID, StatusCompleted)
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestForceConfirmRechecksAvailability(t *testing.T) {
	repo := newMemRepo("veh-suv")
	svc := newTestService(repo)
	ctx := context.Background()

	// 直接种入一条 pending 与一条与之重叠的 confirmed（历史脏数据场景）
	pend := &Reservation{
		ID: "resv-pending", VehicleID: "veh-suv", UserID: "user-alice",
		PickupDate: mustRange(t, "2024-06-01", "2024-06-04").Pickup,
		ReturnDate: mustRange(t, "2024-06-01", "2024-06-04").Return,
		Status:     StatusPending, Version: 1, IdempotencyKey: "k-pending",
	}
	conf := &Reservation{
		ID: "resv-confirmed", VehicleID: "veh-suv", UserID: "user-bob",
		PickupDate: mustRange(t, "2024-06-03", "2024-06-06").Pickup,
		ReturnDate: mustRange(t, "2024-06-03", "2024-06-06").Return,
		Status:     StatusConfirmed, Version: 1, IdempotencyKey: "k-confirmed",
	}
	repo.mu.Lock()
	repo.items[pend.ID] = pend
	repo.items[conf.ID] = conf
	repo.mu.Unlock()

	// 确认会与既有 confirmed 冲突：拒绝
	_, err := svc.ForceTransition(ctx, root, pend.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrDateConflict)

	// 冲突方取消后再确认：放行
	_, err = svc.CancelReservation(ctx, root, conf.ID)
	require.NoError(t, err)
	got, err := svc.ForceTransition(ctx, root, pend.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	rng := mustRange(t, "2024-06-01", "2024-06-04")
	other := mustRange(t, "2024-06-01", "2024-06-05")

	k1 := IdempotencyKey("user-alice", "veh-suv", rng)
	k2 := IdempotencyKey("user-alice", "veh-suv", rng)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 40)

	assert.NotEqual(t, k1, IdempotencyKey("user-bob", "veh-suv", rng))
	assert.NotEqual(t, k1, IdempotencyKey("user-alice", "veh-van", rng))
	assert.NotEqual(t, k1, IdempotencyKey("user-alice", "veh-suv", other))
}
