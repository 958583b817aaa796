package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joestump/bio-links/internal/metrics"
	"github.com/joestump/bio-links/internal/store"
)

// ClickRetention deletes click rows older than MaxAge.
type ClickRetention struct {
	Clicks *store.ClickStore
	MaxAge time.Duration
	Every  string // cron spec, "@every 1h" when empty
}

func (j *ClickRetention) Name() string { return "click-retention" }

func (j *ClickRetention) Schedule() string {
	if j.Every == "" {
		return "@every 1h"
	}
	return j.Every
}

func (j *ClickRetention) Run(ctx context.Context) error {
	n, err := j.Clicks.PurgeBefore(ctx, time.Now().Add(-j.MaxAge))
	if err != nil {
		return err
	}
	metrics.ClicksPurgedTotal.Add(float64(n))
	if n > 0 {
		logrus.WithFields(logrus.Fields{"deleted": n, "max_age": j.MaxAge.String()}).Info("purged old clicks")
	}
	return nil
}

// UserCount refreshes the registered-users gauge.
type UserCount struct {
	Users *store.UserStore
}

func (j *UserCount) Name() string     { return "user-count" }
func (j *UserCount) Schedule() string { return "@every 5m" }

func (j *UserCount) Run(ctx context.Context) error {
	n, err := j.Users.Count(ctx)
	if err != nil {
		return err
	}
	metrics.UsersTotal.Set(float64(n))
	return nil
}
