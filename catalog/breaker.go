package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-checkout/core/course"
	"github.com/irsalhamdi/course-checkout/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned whenever the catalog cannot give a definite
// answer, including while the breaker is open.
var ErrUnavailable = errors.New("course catalog unavailable")

type Source interface {
	Fetch(ctx context.Context, id string) (course.Course, error)
}

type BreakerConfig struct {
	Name string

	// MaxRequests is the number of probes let through while half-open.
	MaxRequests uint32

	// Interval is the length of the window failures are counted in while
	// closed. Counts reset at the end of every window.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	MinRequests  uint32
	FailureRatio float64
}

// Breaker guards a Source with a circuit breaker. Unknown courses are a
// valid answer and never count as failures.
type Breaker struct {
	src Source
	cb  *gobreaker.CircuitBreaker
	log logrus.FieldLogger
}

func NewBreaker(src Source, cfg BreakerConfig, log logrus.FieldLogger) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "catalog"
	}

	b := &Breaker{src: src, log: log}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < cfg.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, course.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			b.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	return b
}

// Lookup returns course.ErrNotFound for unknown courses and ErrUnavailable
// for everything else that is not a course.
func (b *Breaker) Lookup(ctx context.Context, id string) (course.Course, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.src.Fetch(ctx, id)
	})

	switch {
	case err == nil:
		return v.(course.Course), nil
	case errors.Is(err, course.ErrNotFound):
		return course.Course{}, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return course.Course{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		b.log.WithFields(logrus.Fields{
			"course_id": id,
			"message":   err,
		}).Warn("catalog lookup failed")
		return course.Course{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
