package services

import (
	"time"

	"github.com/google/uuid"
)

// options are the injectable seams shared by the domain services: the
// clock, the ID source, and the calendar location used for day bucketing.
type options struct {
	now   func() time.Time
	newID func() uuid.UUID
	loc   *time.Location
}

func defaultOptions() *options {
	return &options{now: time.Now, newID: uuid.New, loc: time.Local}
}

// Option customizes a service at construction.
type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDProvider(newID func() uuid.UUID) Option {
	return func(o *options) { o.newID = newID }
}

func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}
