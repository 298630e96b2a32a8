package booking

import (
	"context"
	"time"

	"github.com/NeoDrive/NeoDrive/internal/common/logger"
	"github.com/NeoDrive/NeoDrive/internal/common/middleware"
)

// Sweeper 定时把还车日已过的 confirmed 预订流转为 completed。
// 存储调用套在熔断器里：数据库持续故障时停止打点，待恢复后自动续扫。
// 扫描本身幂等，错过若干轮次只是延迟完成，不会产生错误状态。
type Sweeper struct {
	svc      *Service
	interval time.Duration
	breaker  *middleware.CircuitBreaker
	log      logger.Logger
}

func NewSweeper(svc *Service, interval time.Duration, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		breaker:  middleware.NewCircuitBreaker("reservation-sweeper", 3, interval*2),
		log:      log,
	}
}

// Run 阻塞运行直到 ctx 取消。建议放在独立 goroutine 中。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 启动时先扫一轮，避免服务重启期间积压的到期预订等满一个周期
	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	err := s.breaker.Call(ctx, func() error {
		_, err := s.svc.CompleteExpiredReservations(ctx, time.Now())
		return err
	})
	if err != nil && s.log != nil {
		s.log.WithError(err).Warn("reservation sweep failed")
	}
}
