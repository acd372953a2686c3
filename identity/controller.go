package identity

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"jobharvest/config"
)

// Identity is one rotated browser persona: user-agent, viewport and an
// optional upstream proxy.
type Identity struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	ProxyURL       string
}

var defaultIdentity = Identity{
	UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	ViewportWidth:  1920,
	ViewportHeight: 1080,
}

// DelayKind selects which configured politeness range applies.
type DelayKind int

const (
	DelayPage     DelayKind = iota // between record/detail fetches
	DelayPaginate                  // between listing pages
	DelayStrict                    // sources with tighter defenses
)

type delayRange struct {
	min, max time.Duration
}

// Controller hands out non-repeating identities from the configured pool
// and jittered politeness delays. It holds no state beyond the pool and
// the current shuffle position.
type Controller struct {
	mu     sync.Mutex
	pool   []Identity
	order  []int
	next   int
	rng    *rand.Rand
	delays map[DelayKind]delayRange
	warned bool
}

func NewController(identities []config.IdentityConfig) *Controller {
	pool := make([]Identity, 0, len(identities))
	for _, ic := range identities {
		id := Identity{
			UserAgent:      ic.UserAgent,
			ViewportWidth:  ic.ViewportWidth,
			ViewportHeight: ic.ViewportHeight,
			ProxyURL:       ic.Proxy,
		}
		if id.ViewportWidth <= 0 {
			id.ViewportWidth = defaultIdentity.ViewportWidth
		}
		if id.ViewportHeight <= 0 {
			id.ViewportHeight = defaultIdentity.ViewportHeight
		}
		pool = append(pool, id)
	}

	c := &Controller{
		pool: pool,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		delays: map[DelayKind]delayRange{
			DelayPage:     {2 * time.Second, 5 * time.Second},
			DelayPaginate: {5 * time.Second, 8 * time.Second},
			DelayStrict:   {8 * time.Second, 12 * time.Second},
		},
	}
	c.reshuffle()
	return c
}

// NextIdentity returns a randomly ordered identity, never repeating one
// until the whole pool has been handed out. An empty pool degrades to
// the single default identity; that is a warning, never fatal.
func (c *Controller) NextIdentity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) == 0 {
		if !c.warned {
			log.Println("Identity pool empty, falling back to default identity")
			c.warned = true
		}
		return defaultIdentity
	}

	if c.next >= len(c.order) {
		c.reshuffle()
	}
	id := c.pool[c.order[c.next]]
	c.next++
	return id
}

func (c *Controller) reshuffle() {
	c.order = c.rng.Perm(len(c.pool))
	c.next = 0
}

// PolitenessDelay returns a jittered pause from the configured range so
// request timing carries no uniform signature.
func (c *Controller) PolitenessDelay(kind DelayKind) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.delays[kind]
	if !ok {
		r = c.delays[DelayPage]
	}
	return r.min + time.Duration(c.rng.Int63n(int64(r.max-r.min)))
}

// PoolSize reports how many identities are configured.
func (c *Controller) PoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}
