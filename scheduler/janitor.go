package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically purges finished jobs from the store.
type Janitor struct {
	cron      *cron.Cron
	store     JobStore
	retention time.Duration
	clock     Clock
}

func NewJanitor(store JobStore, spec string, retention time.Duration, clock Clock) (*Janitor, error) {
	if clock == nil {
		clock = RealClock()
	}
	j := &Janitor{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		store:     store,
		retention: retention,
		clock:     clock,
	}
	if _, err := j.cron.AddFunc(spec, j.Sweep); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", spec, err)
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the cron loop and waits for a running sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep removes jobs that finished before now - retention.
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	before := j.clock.Now().Add(-j.retention)
	n, err := j.store.Purge(ctx, before)
	if err != nil {
		log.Printf("janitor: purge failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("janitor: purged %d finished reminder jobs", n)
	}
}
