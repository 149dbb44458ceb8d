package lease

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// KeepAlive renews l every interval until the returned stop function is
// called. A failed renewal is logged and retried on the next tick; if the
// lease is really gone, the next Validate by a mutation will fail.
func KeepAlive(ctx context.Context, m Manager, l *Lease, interval time.Duration, logger zerolog.Logger) (stop func()) {
	if interval <= 0 || l == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Renew(ctx, l); err != nil && ctx.Err() == nil {
					logger.Warn().Err(err).
						Str("service", l.ServiceID).
						Str("holder", l.Holder).
						Msg("lease renewal failed")
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
