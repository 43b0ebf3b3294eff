package workers

import (
	"time"

	"wabot/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepExpiredQRCodes clears QR codes that can no longer be scanned.
func SweepExpiredQRCodes(st *store.Store, now time.Time) (int64, error) {
	n, err := st.ClearExpiredQRCodes(now)
	if err != nil {
		zap.L().Error("qr sweeper: update failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		zap.L().Info("qr sweeper: cleared expired qr codes", zap.Int64("count", n))
	}
	return n, nil
}

// StartQRSweeper schedules SweepExpiredQRCodes on spec (e.g. "@every 1m").
// The caller stops the returned scheduler on shutdown.
func StartQRSweeper(st *store.Store, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() {
		_, _ = SweepExpiredQRCodes(st, time.Now().UTC())
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
