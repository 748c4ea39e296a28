// Package admission implements per-identity token buckets that gate the
// request path before any authorization or store work happens.
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Class groups endpoints that share one bucket per identity.
type Class string

const (
	ClassGeneric  Class = "generic"
	ClassUpload   Class = "upload"
	ClassDownload Class = "download"
)

// Limits is the steady-state allowance per minute for each class. The
// bucket capacity equals the per-minute allowance.
type Limits map[Class]int

func DefaultLimits() Limits {
	return Limits{ClassGeneric: 60, ClassUpload: 20, ClassDownload: 40}
}

func (l Limits) perMinute(class Class) int {
	if n, ok := l[class]; ok && n > 0 {
		return n
	}
	return l[ClassGeneric]
}

// Admitter decides whether identity may proceed with a request of class.
type Admitter interface {
	Admit(ctx context.Context, identity string, class Class) (bool, error)
	// RetryAfter is the hint sent with a rejection.
	RetryAfter(class Class) time.Duration
	Name() string
}

// Controller keeps one rate.Limiter per (identity, class) in a bounded LRU.
// Entries idle for longer than the TTL are evicted; every access re-adds the
// entry, which restarts its TTL.
type Controller struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	limits  Limits
	now     func() time.Time
}

// Options configures a Controller. Zero values fall back to defaults.
type Options struct {
	Limits  Limits
	MaxKeys int
	IdleTTL time.Duration
	Now     func() time.Time
}

func NewController(opts Options) *Controller {
	if opts.Limits == nil {
		opts.Limits = DefaultLimits()
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 10000
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		buckets: expirable.NewLRU[string, *rate.Limiter](opts.MaxKeys, nil, opts.IdleTTL),
		limits:  opts.Limits,
		now:     opts.Now,
	}
}

func (c *Controller) Name() string { return "memory" }

// RetryAfter is the time one token takes to refill.
func (c *Controller) RetryAfter(class Class) time.Duration {
	return time.Minute / time.Duration(c.limits.perMinute(class))
}

func (c *Controller) limiter(identity string, class Class) *rate.Limiter {
	key := string(class) + "|" + identity
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.buckets.Get(key)
	if !ok {
		n := c.limits.perMinute(class)
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	c.buckets.Add(key, lim)
	return lim
}

// TryAcquire takes one token from the (identity, class) bucket.
func (c *Controller) TryAcquire(identity string, class Class) bool {
	return c.limiter(identity, class).AllowN(c.now(), 1)
}

func (c *Controller) Admit(_ context.Context, identity string, class Class) (bool, error) {
	return c.TryAcquire(identity, class), nil
}

// Len reports how many buckets are currently tracked.
func (c *Controller) Len() int {
	return c.buckets.Len()
}
