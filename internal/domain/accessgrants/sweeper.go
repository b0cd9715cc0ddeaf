package accessgrants

import (
	"context"
	"time"

	"patient-access/internal/platform/logger"
)

// RunSweeper materializa expiraciones cada interval hasta que ctx se cancele.
// Es solo housekeeping: las decisiones de acceso ya derivan la expiración al momento.
func RunSweeper(ctx context.Context, svc *Service, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		return
	}
	if log == nil {
		log = logger.Nop()
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.ExpireStale(ctx)
			if err != nil {
				log.Warn("expire sweep failed", map[string]any{"error": err})
				continue
			}
			if n > 0 {
				log.Info("expired grants swept", map[string]any{"count": n})
			}
		}
	}
}
