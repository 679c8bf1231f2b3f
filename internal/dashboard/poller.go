package dashboard

import (
	"context"
	"fmt"
	"log"
	"time"

	"voiceattend/internal/attendance"
)

// poller is the running status loop of one class.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	// finishing is set once the loop saw completion and no longer ticks.
	// Guarded by Dashboard.mu.
	finishing bool
}

// startPoller replaces any poller of classID with a fresh one. Callers hold
// the class lock.
func (d *Dashboard) startPoller(classID, className string) {
	d.stopPoller(classID)

	ctx, cancel := context.WithCancel(d.baseCtx)
	p := &poller{cancel: cancel, done: make(chan struct{})}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel()
		return
	}
	d.pollers[classID] = p
	d.mu.Unlock()

	d.opts.Metrics.PollerStarted()
	go d.poll(ctx, p, classID, className)
}

// stopPoller cancels the poller of classID and waits for it to exit.
func (d *Dashboard) stopPoller(classID string) {
	d.mu.Lock()
	p := d.pollers[classID]
	delete(d.pollers, classID)
	d.mu.Unlock()

	if p != nil {
		p.cancel()
		<-p.done
	}
}

// release unregisters p unless another poller replaced it.
func (d *Dashboard) release(classID string, p *poller) {
	d.mu.Lock()
	if d.currentLocked(classID, p) {
		delete(d.pollers, classID)
	}
	d.mu.Unlock()
}

// currentLocked reports whether p is still the registered poller of classID.
// Callers hold d.mu.
func (d *Dashboard) currentLocked(classID string, p *poller) bool {
	return d.pollers[classID] == p
}

func (d *Dashboard) poll(ctx context.Context, p *poller, classID, className string) {
	defer close(p.done)
	defer d.opts.Metrics.PollerStopped()
	// p stays registered until finalize is done, so stopPoller waits for it
	defer d.release(classID, p)

	// a tick that outlasts the interval makes the ticker drop ticks, so ticks
	// never overlap
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if finished := d.tick(ctx, p, classID, className); finished {
			return
		}
	}
}

// tick runs one status query and reports whether the loop must end.
func (d *Dashboard) tick(ctx context.Context, p *poller, classID, className string) bool {
	status, err := d.svc.SessionStatus(ctx, className)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		d.opts.Metrics.Tick("")
		log.Printf("dashboard: status poll for %s failed: %v", className, err)
		return false
	}
	d.opts.Metrics.Tick(status)

	switch status {
	case attendance.ServiceStatusCompleted:
		d.complete(ctx, p, classID, className)
		return true

	case attendance.ServiceStatusPaused:
		d.mu.Lock()
		if d.currentLocked(classID, p) {
			d.setStatusLocked(fmt.Sprintf("Attendance paused for %s", className))
		}
		d.mu.Unlock()
		return false
	}

	partials, err := d.svc.PartialResults(ctx, className)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		log.Printf("dashboard: partial results for %s failed: %v", className, err)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx.Err() != nil || !d.currentLocked(classID, p) {
		return true
	}
	merged, hits := attendance.MergePartials(d.rosters[classID], partials)
	if _, loaded := d.rosters[classID]; loaded {
		d.rosters[classID] = merged
	}
	d.opts.Metrics.Merged(hits)
	d.setStatusLocked(fmt.Sprintf("Attendance in progress for %s...", className))
	return false
}

// complete finalizes the session of p and stages its results. The loop has
// stopped ticking; the results are dropped when p was stopped or replaced
// while the service was finishing.
func (d *Dashboard) complete(ctx context.Context, p *poller, classID, className string) {
	d.mu.Lock()
	if !d.currentLocked(classID, p) {
		d.mu.Unlock()
		return
	}
	p.finishing = true
	d.mu.Unlock()

	results, err := d.svc.FinishSession(ctx, className)
	if err != nil && ctx.Err() == nil {
		log.Printf("dashboard: finish session for %s failed, treating results as empty: %v", className, err)
		results = nil
	}
	mapped := attendance.FinalizeRecords(results, d.opts.Now())

	d.mu.Lock()
	if ctx.Err() != nil || !d.currentLocked(classID, p) {
		d.mu.Unlock()
		log.Printf("dashboard: session for %s stopped while finishing, results dropped", className)
		return
	}
	if len(mapped) > 0 {
		d.rosters[classID] = mapped
		d.pending[classID] = cloneRecords(mapped)
	}
	d.states[classID] = attendance.StateCompleted
	d.setStatusLocked(fmt.Sprintf("Attendance completed for %s", className))
	d.mu.Unlock()

	evt := attendance.NewEvent(attendance.EventSessionCompleted, classID, className)
	evt.State = attendance.StateCompleted
	evt.Records = cloneRecords(mapped)
	d.emit(evt)

	if _, err := d.RefreshClasses(ctx); err != nil {
		log.Printf("dashboard: refresh after completion of %s failed: %v", className, err)
	}
}
