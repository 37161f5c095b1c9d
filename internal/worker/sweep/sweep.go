// Package sweep periodically cancels pending orders whose payment window
// has expired. Each cancellation uses the same only-if-still-pending guard
// as the webhook path, so the sweep can never beat a late success event.
package sweep

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	ordersvc "github.com/mustafamuhammed29/handyland-sub001/internal/service/order"
)

// Sweeper drives the periodic stale-pending cancellation.
type Sweeper struct {
	orders   *ordersvc.Service
	logger   *zap.Logger
	interval time.Duration
	enabled  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSweeper constructs a Sweeper from configuration.
func NewSweeper(orders *ordersvc.Service, cfg config.Config, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		orders:   orders,
		logger:   logger,
		interval: cfg.Checkout.SweepInterval,
		enabled:  cfg.Checkout.SweepEnabled,
	}
}

// Module ties the sweeper to the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewSweeper),
	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: s.start,
			OnStop:  s.stop,
		})
	}),
)

func (s *Sweeper) start(context.Context) error {
	if !s.enabled {
		s.logger.Info("pending order sweep disabled")

		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()

	s.logger.Info("pending order sweep started", zap.Duration("interval", s.interval))

	return nil
}

func (s *Sweeper) stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.logger.Info("pending order sweep stopped")

		return nil
	}
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := s.orders.CancelStalePending(ctx)
			if err != nil {
				s.logger.Error("pending order sweep failed", zap.Error(err))

				continue
			}
			if cancelled > 0 {
				s.logger.Info("stale pending orders cancelled", zap.Int("count", cancelled))
			}
		}
	}
}
