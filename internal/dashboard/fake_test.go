package dashboard

import (
	"context"
	"errors"
	"sync"

	"voiceattend/internal/attendance"
	"voiceattend/internal/voiceclient"
)

var errBoom = errors.New("service unavailable")

// fakeService is a scriptable Service. Statuses are consumed in order and the
// last one repeats.
type fakeService struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	classes  []attendance.Class
	rosters  map[string][]attendance.StudentRecord
	statuses []string
	partials []attendance.PartialRecord
	finals   []attendance.StudentRecord
	batches  [][]attendance.StudentRecord
	feedback []attendance.Feedback
	reply    voiceclient.FeedbackReply
	onFinish func()
}

func newFakeService() *fakeService {
	return &fakeService{
		calls:   map[string]int{},
		fail:    map[string]error{},
		rosters: map[string][]attendance.StudentRecord{},
	}
}

var _ Service = (*fakeService)(nil)

func (f *fakeService) hit(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[call]++
	return f.fail[call]
}

func (f *fakeService) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeService) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeService) setFail(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, call)
		return
	}
	f.fail[call] = err
}

func (f *fakeService) setStatuses(s ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = s
}

func (f *fakeService) setPartials(p ...attendance.PartialRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = p
}

func (f *fakeService) ListClasses(context.Context) ([]attendance.Class, error) {
	if err := f.hit("classes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendance.Class(nil), f.classes...), nil
}

func (f *fakeService) CreateClass(_ context.Context, in attendance.NewClass) error {
	if err := f.hit("create_class"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes = append(f.classes, attendance.Class{ID: "new-" + in.Name, Name: in.Name, Department: in.Department})
	return nil
}

func (f *fakeService) ListRoster(_ context.Context, classID string) ([]attendance.StudentRecord, error) {
	if err := f.hit("roster"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendance.StudentRecord(nil), f.rosters[classID]...), nil
}

func (f *fakeService) StartSession(context.Context, string) error  { return f.hit("start") }
func (f *fakeService) PauseSession(context.Context, string) error  { return f.hit("pause") }
func (f *fakeService) ResumeSession(context.Context, string) error { return f.hit("resume") }

func (f *fakeService) SessionStatus(ctx context.Context, _ string) (string, error) {
	if err := f.hit("status"); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return attendance.ServiceStatusRecording, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

func (f *fakeService) PartialResults(context.Context, string) ([]attendance.PartialRecord, error) {
	if err := f.hit("temp"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendance.PartialRecord(nil), f.partials...), nil
}

func (f *fakeService) FinishSession(context.Context, string) ([]attendance.StudentRecord, error) {
	f.mu.Lock()
	hook := f.onFinish
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := f.hit("finish"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendance.StudentRecord(nil), f.finals...), nil
}

func (f *fakeService) CommitUpdates(_ context.Context, records []attendance.StudentRecord) (string, error) {
	if err := f.hit("update"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
	return "Attendance updated", nil
}

func (f *fakeService) SendFeedback(_ context.Context, fb attendance.Feedback) (voiceclient.FeedbackReply, error) {
	if err := f.hit("feedback"); err != nil {
		return voiceclient.FeedbackReply{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, fb)
	return f.reply, nil
}

// blockFinish makes FinishSession wait until release is called. entered is
// closed when the first finish call arrives.
func (f *fakeService) blockFinish() (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	gate := make(chan struct{})
	var arrived, opened sync.Once
	f.mu.Lock()
	f.onFinish = func() {
		arrived.Do(func() { close(in) })
		<-gate
	}
	f.mu.Unlock()
	return in, func() { opened.Do(func() { close(gate) }) }
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []attendance.SessionEvent
}

func (s *recordingSink) Emit(evt attendance.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSink) kinds() []attendance.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]attendance.EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func (s *recordingSink) last(kind attendance.EventKind) (attendance.SessionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i], true
		}
	}
	return attendance.SessionEvent{}, false
}
