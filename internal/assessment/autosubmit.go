package assessment

import (
	"context"
	"log"
	"sync"
	"time"
)

// AutoSubmitter holds one in-process timer per open timed attempt and fires
// the forced-submit path when an attempt's clock runs out. The countdown is
// authoritative server state: the learner's on-screen timer is cosmetic.
//
// An attempt moves NotStarted -> Running when Watch is called, and leaves
// Running through exactly one of: manual submit (Cancel), expiry
// (ExpireAttempt), or navigation away (timer later abandons or the sweep
// does). ExpireAttempt and SubmitAttempt are both idempotent, so a timer
// racing a manual submit can never produce a second attempt record.
type AutoSubmitter struct {
	svc   *Service
	grace time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewAutoSubmitter(svc *Service, grace time.Duration) *AutoSubmitter {
	return &AutoSubmitter{
		svc:    svc,
		grace:  grace,
		timers: map[string]*time.Timer{},
	}
}

// Watch schedules expiry for an open timed attempt. Untimed or already
// finalized attempts are ignored.
func (c *AutoSubmitter) Watch(a Attempt) {
	if !a.Open() || a.DeadlineAt == 0 {
		return
	}
	d := time.Until(time.Unix(a.DeadlineAt, 0).Add(c.grace))
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.timers[a.ID]; ok {
		return
	}
	id := a.ID
	c.timers[id] = time.AfterFunc(d, func() { c.fire(id) })
}

// Cancel stops the countdown, typically after a manual submit. Firing after
// Cancel is harmless: ExpireAttempt no-ops on finalized attempts.
func (c *AutoSubmitter) Cancel(attemptID string) {
	c.mu.Lock()
	t, ok := c.timers[attemptID]
	delete(c.timers, attemptID)
	c.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// Stop cancels all pending timers. The sweep job finalizes anything still
// open after a restart.
func (c *AutoSubmitter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *AutoSubmitter) fire(attemptID string) {
	c.mu.Lock()
	delete(c.timers, attemptID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.svc.ExpireAttempt(ctx, attemptID); err != nil {
		log.Printf("[auto-submit] attempt %s: %v", attemptID, err)
	}
}
