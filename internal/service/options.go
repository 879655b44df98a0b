package service

import (
	"time"

	"go.uber.org/zap"

	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/metrics"
)

// Options carries the ambient dependencies shared by all services.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Location is the trainer-local wall clock; UTC when nil.
	Location *time.Location
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// today is midnight of the current trainer-local day.
func (o Options) today() time.Time {
	return domain.StartOfDay(o.Now(), o.Location)
}
