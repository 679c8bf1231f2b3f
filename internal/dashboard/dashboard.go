// Package dashboard keeps the operator console's view state and drives the
// per-class recording sessions against the voice attendance service.
//
// All state lives in memory behind one mutex. Session commands for the same
// class are serialized by a per-class lock that is held across the service
// call, so a state transition is applied only after the service accepted it.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"voiceattend/internal/attendance"
	"voiceattend/internal/metrics"
	"voiceattend/internal/voiceclient"
)

var (
	ErrClassIDRequired   = errors.New("class id required")
	ErrStudentIDRequired = errors.New("student id required")
	ErrNothingToUpdate   = errors.New("no updates to send")
	ErrPendingCommit     = errors.New("completed session has results waiting to be committed")
	ErrClosed            = errors.New("dashboard closed")
)

// Service is the part of the attendance service the dashboard drives.
type Service interface {
	ListClasses(ctx context.Context) ([]attendance.Class, error)
	CreateClass(ctx context.Context, in attendance.NewClass) error
	ListRoster(ctx context.Context, classID string) ([]attendance.StudentRecord, error)
	StartSession(ctx context.Context, className string) error
	PauseSession(ctx context.Context, className string) error
	ResumeSession(ctx context.Context, className string) error
	SessionStatus(ctx context.Context, className string) (string, error)
	PartialResults(ctx context.Context, className string) ([]attendance.PartialRecord, error)
	FinishSession(ctx context.Context, className string) ([]attendance.StudentRecord, error)
	CommitUpdates(ctx context.Context, records []attendance.StudentRecord) (string, error)
	SendFeedback(ctx context.Context, fb attendance.Feedback) (voiceclient.FeedbackReply, error)
}

var _ Service = (*voiceclient.Client)(nil)

// EventSink receives session lifecycle events. Emit must not block for long.
type EventSink interface {
	Emit(evt attendance.SessionEvent)
}

// Options tune a Dashboard. Zero values take the defaults.
type Options struct {
	PollInterval time.Duration
	AckDelay     time.Duration
	Metrics      *metrics.Metrics
	Events       EventSink
	Now          func() time.Time
}

// DefaultPollInterval is how often a recording session is polled.
const DefaultPollInterval = time.Second

// DefaultAckDelay is how long a feedback acknowledgment stays visible.
const DefaultAckDelay = 2500 * time.Millisecond

// Dashboard is the operator's view of classes, rosters and sessions.
type Dashboard struct {
	svc     Service
	opts    Options
	baseCtx context.Context
	stop    context.CancelFunc

	mu        sync.Mutex
	classes   []attendance.Class
	rosters   map[string][]attendance.StudentRecord
	states    map[string]attendance.SessionState
	names     map[string]string
	pending   map[string][]attendance.StudentRecord
	pollers   map[string]*poller
	locks     map[string]*sync.Mutex
	active    string
	expanded  string
	status    string
	statusSeq uint64
	ackTimer  *time.Timer
	closed    bool
}

// New creates a dashboard over svc.
func New(svc Service, opts Options) *Dashboard {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.AckDelay <= 0 {
		opts.AckDelay = DefaultAckDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dashboard{
		svc:     svc,
		opts:    opts,
		baseCtx: ctx,
		stop:    cancel,
		rosters: make(map[string][]attendance.StudentRecord),
		states:  make(map[string]attendance.SessionState),
		names:   make(map[string]string),
		pending: make(map[string][]attendance.StudentRecord),
		pollers: make(map[string]*poller),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Close stops every poller and pending timer. The dashboard rejects session
// commands afterwards.
func (d *Dashboard) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	running := make([]*poller, 0, len(d.pollers))
	for id, p := range d.pollers {
		running = append(running, p)
		delete(d.pollers, id)
	}
	if d.ackTimer != nil {
		d.ackTimer.Stop()
	}
	d.mu.Unlock()

	d.stop()
	for _, p := range running {
		p.cancel()
		<-p.done
	}
}

// RefreshClasses reloads the class list.
func (d *Dashboard) RefreshClasses(ctx context.Context) ([]attendance.Class, error) {
	classes, err := d.svc.ListClasses(ctx)
	if err != nil {
		log.Printf("dashboard: fetch classes failed: %v", err)
		return nil, fmt.Errorf("fetch classes: %w", err)
	}
	d.mu.Lock()
	d.classes = classes
	d.mu.Unlock()
	return cloneClasses(classes), nil
}

// AddClass creates a class and reloads the list.
func (d *Dashboard) AddClass(ctx context.Context, in attendance.NewClass) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Department = strings.TrimSpace(in.Department)
	if err := in.Validate(); err != nil {
		return err
	}
	if err := d.svc.CreateClass(ctx, in); err != nil {
		log.Printf("dashboard: add class %q failed: %v", in.Name, err)
		return fmt.Errorf("add class: %w", err)
	}
	_, err := d.RefreshClasses(ctx)
	return err
}

// ToggleExpand collapses classID when it is expanded, otherwise loads its
// roster and expands it. It reports whether the class is now expanded.
func (d *Dashboard) ToggleExpand(ctx context.Context, classID string) (bool, error) {
	if classID == "" {
		return false, ErrClassIDRequired
	}
	d.mu.Lock()
	if d.expanded == classID {
		d.expanded = ""
		d.mu.Unlock()
		return false, nil
	}
	d.mu.Unlock()

	if err := d.loadRoster(ctx, classID); err != nil {
		return false, err
	}
	d.mu.Lock()
	d.expanded = classID
	d.mu.Unlock()
	return true, nil
}

func (d *Dashboard) loadRoster(ctx context.Context, classID string) error {
	students, err := d.svc.ListRoster(ctx, classID)
	if err != nil {
		log.Printf("dashboard: load roster for %s failed: %v", classID, err)
		return fmt.Errorf("load roster: %w", err)
	}
	if students == nil {
		students = []attendance.StudentRecord{}
	}
	d.mu.Lock()
	d.rosters[classID] = students
	d.mu.Unlock()
	return nil
}

// State returns the session state of classID; unknown classes are idle.
func (d *Dashboard) State(classID string) attendance.SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked(classID)
}

func (d *Dashboard) stateLocked(classID string) attendance.SessionState {
	if s, ok := d.states[classID]; ok {
		return s
	}
	return attendance.StateIdle
}

// Roster returns a copy of the loaded roster of classID.
func (d *Dashboard) Roster(classID string) []attendance.StudentRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneRecords(d.rosters[classID])
}

// Pending returns a copy of the records staged for classID.
func (d *Dashboard) Pending(classID string) []attendance.StudentRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneRecords(d.pending[classID])
}

// Polling reports whether a poller ticks for classID.
func (d *Dashboard) Polling(classID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pollers[classID]
	return ok && !p.finishing
}

// Status returns the current status line.
func (d *Dashboard) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Snapshot is a copy of the whole view state.
type Snapshot struct {
	Classes  []attendance.Class                    `json:"classes"`
	Summary  attendance.Summary                    `json:"summary"`
	Rosters  map[string][]attendance.StudentRecord `json:"rosters"`
	States   map[string]attendance.SessionState    `json:"states"`
	Pending  map[string][]attendance.StudentRecord `json:"pending"`
	Polling  []string                              `json:"polling"`
	Active   string                                `json:"active_class,omitempty"`
	Expanded string                                `json:"expanded_class,omitempty"`
	Status   string                                `json:"status"`
}

// Snapshot copies the view state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Classes:  cloneClasses(d.classes),
		Summary:  attendance.Summarize(d.classes),
		Rosters:  make(map[string][]attendance.StudentRecord, len(d.rosters)),
		States:   make(map[string]attendance.SessionState, len(d.states)+len(d.classes)),
		Pending:  make(map[string][]attendance.StudentRecord, len(d.pending)),
		Polling:  make([]string, 0, len(d.pollers)),
		Active:   d.active,
		Expanded: d.expanded,
		Status:   d.status,
	}
	for _, c := range d.classes {
		s.States[c.ID] = d.stateLocked(c.ID)
	}
	for id, st := range d.states {
		s.States[id] = st
	}
	for id, r := range d.rosters {
		s.Rosters[id] = cloneRecords(r)
	}
	for id, r := range d.pending {
		s.Pending[id] = cloneRecords(r)
	}
	for id, p := range d.pollers {
		if !p.finishing {
			s.Polling = append(s.Polling, id)
		}
	}
	sort.Strings(s.Polling)
	return s
}

// setStatusLocked replaces the status line and cancels a pending auto-clear.
// Callers hold d.mu.
func (d *Dashboard) setStatusLocked(msg string) {
	d.statusSeq++
	d.status = msg
	if d.ackTimer != nil {
		d.ackTimer.Stop()
		d.ackTimer = nil
	}
}

func (d *Dashboard) setStatus(msg string) {
	d.mu.Lock()
	d.setStatusLocked(msg)
	d.mu.Unlock()
}

// setTransientStatus shows msg and clears it after delay unless a newer
// message replaced it first.
func (d *Dashboard) setTransientStatus(msg string, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setStatusLocked(msg)
	if d.closed {
		return
	}
	seq := d.statusSeq
	d.ackTimer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.statusSeq == seq {
			d.status = ""
			d.ackTimer = nil
		}
	})
}

// lockClass serializes session commands for one class.
func (d *Dashboard) lockClass(classID string) func() {
	d.mu.Lock()
	l, ok := d.locks[classID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[classID] = l
	}
	d.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (d *Dashboard) emit(evt attendance.SessionEvent) {
	if d.opts.Events != nil {
		d.opts.Events.Emit(evt)
	}
}

func cloneRecords(in []attendance.StudentRecord) []attendance.StudentRecord {
	if in == nil {
		return nil
	}
	out := make([]attendance.StudentRecord, len(in))
	copy(out, in)
	return out
}

func cloneClasses(in []attendance.Class) []attendance.Class {
	if in == nil {
		return nil
	}
	out := make([]attendance.Class, len(in))
	copy(out, in)
	return out
}
