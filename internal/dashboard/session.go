package dashboard

import (
	"context"
	"fmt"
	"log"
	"strings"

	"voiceattend/internal/attendance"
)

// ToggleSession advances the recording session of classID by one step:
// idle starts, recording pauses, paused resumes and completed commits the
// staged results. It returns the state after the step. On failure the state
// is unchanged and a failure status line is shown.
func (d *Dashboard) ToggleSession(ctx context.Context, classID, className string) (attendance.SessionState, error) {
	className = strings.TrimSpace(className)
	if className == "" {
		d.setStatus("Class name missing")
		return d.State(classID), attendance.ErrClassNameRequired
	}
	if classID == "" {
		return attendance.StateIdle, ErrClassIDRequired
	}

	unlock := d.lockClass(classID)
	defer unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.State(classID), ErrClosed
	}
	d.active = classID
	from := d.stateLocked(classID)
	d.states[classID] = from
	d.names[classID] = className
	d.mu.Unlock()

	switch from {
	case attendance.StateIdle:
		return d.start(ctx, classID, className)
	case attendance.StateRecording:
		return d.pause(ctx, classID, className)
	case attendance.StatePaused:
		return d.resume(ctx, classID, className)
	case attendance.StateCompleted:
		if err := d.commitLocked(ctx, classID); err != nil {
			return d.State(classID), err
		}
		return d.State(classID), nil
	}
	return from, fmt.Errorf("class %s in unknown state %q", classID, from)
}

func (d *Dashboard) start(ctx context.Context, classID, className string) (attendance.SessionState, error) {
	err := d.svc.StartSession(ctx, className)
	d.opts.Metrics.Command("start", err)
	if err != nil {
		log.Printf("dashboard: start session for %s failed: %v", className, err)
		d.setStatus("Failed to perform action")
		return attendance.StateIdle, fmt.Errorf("start session for %s: %w", className, err)
	}

	d.mu.Lock()
	d.states[classID] = attendance.StateRecording
	delete(d.pending, classID)
	_, loaded := d.rosters[classID]
	d.setStatusLocked(fmt.Sprintf("Recording started for %s...", className))
	d.mu.Unlock()

	// partial results merge into the roster, so make sure there is one
	if !loaded {
		if err := d.loadRoster(ctx, classID); err != nil {
			log.Printf("dashboard: roster for %s not preloaded: %v", classID, err)
		}
	}

	d.startPoller(classID, className)
	evt := attendance.NewEvent(attendance.EventSessionStarted, classID, className)
	evt.State = attendance.StateRecording
	d.emit(evt)
	return attendance.StateRecording, nil
}

func (d *Dashboard) pause(ctx context.Context, classID, className string) (attendance.SessionState, error) {
	err := d.svc.PauseSession(ctx, className)
	d.opts.Metrics.Command("pause", err)
	if err != nil {
		log.Printf("dashboard: pause session for %s failed: %v", className, err)
		d.setStatus("Failed to perform action")
		return attendance.StateRecording, fmt.Errorf("pause session for %s: %w", className, err)
	}

	d.stopPoller(classID)

	d.mu.Lock()
	// the poller may have observed completion while the pause was in flight
	if state := d.stateLocked(classID); state != attendance.StateRecording {
		d.mu.Unlock()
		return state, nil
	}
	d.states[classID] = attendance.StatePaused
	d.setStatusLocked(fmt.Sprintf("Paused attendance for %s", className))
	d.mu.Unlock()

	evt := attendance.NewEvent(attendance.EventSessionPaused, classID, className)
	evt.State = attendance.StatePaused
	d.emit(evt)
	return attendance.StatePaused, nil
}

func (d *Dashboard) resume(ctx context.Context, classID, className string) (attendance.SessionState, error) {
	err := d.svc.ResumeSession(ctx, className)
	d.opts.Metrics.Command("resume", err)
	if err != nil {
		log.Printf("dashboard: resume session for %s failed: %v", className, err)
		d.setStatus("Failed to perform action")
		return attendance.StatePaused, fmt.Errorf("resume session for %s: %w", className, err)
	}

	d.mu.Lock()
	d.states[classID] = attendance.StateRecording
	d.setStatusLocked(fmt.Sprintf("Resumed attendance for %s", className))
	d.mu.Unlock()

	d.startPoller(classID, className)
	evt := attendance.NewEvent(attendance.EventSessionResumed, classID, className)
	evt.State = attendance.StateRecording
	d.emit(evt)
	return attendance.StateRecording, nil
}

// Abort stops the session of classID locally without calling the service and
// returns it to idle. A completed session whose results are still staged
// must be committed instead.
func (d *Dashboard) Abort(classID string) error {
	if classID == "" {
		return ErrClassIDRequired
	}
	unlock := d.lockClass(classID)
	defer unlock()

	d.stopPoller(classID)

	d.mu.Lock()
	state := d.stateLocked(classID)
	switch {
	case state == attendance.StateIdle:
		d.mu.Unlock()
		return nil
	case state == attendance.StateCompleted && len(d.pending[classID]) > 0:
		d.mu.Unlock()
		return ErrPendingCommit
	}
	d.states[classID] = attendance.StateIdle
	delete(d.pending, classID)
	if d.active == classID {
		d.active = ""
	}
	name := d.names[classID]
	d.setStatusLocked(fmt.Sprintf("Attendance aborted for %s", name))
	d.mu.Unlock()

	evt := attendance.NewEvent(attendance.EventSessionAborted, classID, name)
	evt.State = attendance.StateIdle
	d.emit(evt)
	return nil
}

// Commit writes the results staged for the active class back to the service.
func (d *Dashboard) Commit(ctx context.Context) error {
	d.mu.Lock()
	classID := d.active
	d.mu.Unlock()
	if classID == "" {
		d.setStatus("No updates to send")
		return ErrNothingToUpdate
	}
	return d.CommitClass(ctx, classID)
}

// CommitClass writes the results staged for classID back to the service.
func (d *Dashboard) CommitClass(ctx context.Context, classID string) error {
	if classID == "" {
		return ErrClassIDRequired
	}
	unlock := d.lockClass(classID)
	defer unlock()
	return d.commitLocked(ctx, classID)
}

// commitLocked runs with the class lock held.
func (d *Dashboard) commitLocked(ctx context.Context, classID string) error {
	d.mu.Lock()
	batch := cloneRecords(d.pending[classID])
	name := d.names[classID]
	d.mu.Unlock()

	if len(batch) == 0 {
		d.setStatus("No updates to send")
		return ErrNothingToUpdate
	}

	msg, err := d.svc.CommitUpdates(ctx, batch)
	d.opts.Metrics.Commit(err)
	if err != nil {
		log.Printf("dashboard: commit for %s failed: %v", classID, err)
		d.setStatus("Failed to update attendance on server")
		return fmt.Errorf("commit attendance for %s: %w", classID, err)
	}
	if msg == "" {
		msg = "Attendance successfully updated"
	}

	d.mu.Lock()
	delete(d.pending, classID)
	d.states[classID] = attendance.StateIdle
	if d.active == classID {
		d.active = ""
	}
	expanded := d.expanded
	d.setStatusLocked(msg)
	d.mu.Unlock()

	evt := attendance.NewEvent(attendance.EventSessionCommitted, classID, name)
	evt.State = attendance.StateIdle
	evt.Message = msg
	evt.Records = batch
	d.emit(evt)

	// reconcile with the service; the commit itself already succeeded
	if _, err := d.RefreshClasses(ctx); err != nil {
		log.Printf("dashboard: refresh after commit failed: %v", err)
	}
	if expanded != "" {
		if err := d.loadRoster(ctx, expanded); err != nil {
			log.Printf("dashboard: reload roster after commit failed: %v", err)
		}
	}
	return nil
}
