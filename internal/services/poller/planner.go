package poller

import (
	"math/rand"
	"time"

	"github.com/BearBump/ParcelDeck/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	ParkedDelay time.Duration // delivered/expired, default: 365 days

	MovingMinDelay time.Duration // default: 1 minute
	MovingMaxDelay time.Duration // default: 1 minute

	IdleDelay time.Duration // pending/unknown, default: 1 minute

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		ParkedDelay: 365 * 24 * time.Hour,

		// Default: 1 minute. Overridable via config in parcel-worker.
		MovingMinDelay: 1 * time.Minute,
		MovingMaxDelay: 1 * time.Minute,

		IdleDelay: 1 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.ParkedDelay <= 0 {
		cfg.ParkedDelay = def.ParkedDelay
	}
	if cfg.MovingMinDelay <= 0 {
		cfg.MovingMinDelay = def.MovingMinDelay
	}
	if cfg.MovingMaxDelay <= 0 {
		cfg.MovingMaxDelay = def.MovingMaxDelay
	}
	if cfg.MovingMaxDelay < cfg.MovingMinDelay {
		cfg.MovingMaxDelay = cfg.MovingMinDelay
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = def.IdleDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

func (p *Planner) NextCheckDelay(status models.DeliveryStatus) time.Duration {
	switch status {
	case models.StatusDelivered, models.StatusExpired:
		return p.cfg.ParkedDelay
	case models.StatusInTransit, models.StatusOutForDelivery, models.StatusFailedAttempt, models.StatusException:
		min := p.cfg.MovingMinDelay
		max := p.cfg.MovingMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMin < 0 {
			secMin = 0
		}
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	default:
		return p.cfg.IdleDelay
	}
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
