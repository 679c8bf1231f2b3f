// Package voicetest runs an in-process stand-in for the voice attendance service.
package voicetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"voiceattend/internal/attendance"
)

// Call is one request the server received.
type Call struct {
	Method string
	Path   string
}

// Server serves the attendance service routes from programmable state.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	classes   []attendance.Class
	rosters   map[string][]attendance.StudentRecord
	statuses  map[string][]string
	partials  map[string][]attendance.PartialRecord
	finals    map[string][]attendance.StudentRecord
	failures  map[string]int
	profiles  []attendance.Profile
	calls     []Call
	committed [][]attendance.StudentRecord
	feedback  []attendance.Feedback
	enrolled  []EnrollRequest
}

// EnrollRequest is a received profile creation.
type EnrollRequest struct {
	Input attendance.ProfileInput
	Audio []byte
}

// NewServer starts a server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		rosters:  map[string][]attendance.StudentRecord{},
		statuses: map[string][]string{},
		partials: map[string][]attendance.PartialRecord{},
		finals:   map[string][]attendance.StudentRecord{},
		failures: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"message": "ok"})
	})
	mux.HandleFunc("GET /classes", s.listClasses)
	mux.HandleFunc("POST /classes", s.createClass)
	mux.HandleFunc("GET /classes/{id}/students", s.roster)
	mux.HandleFunc("POST /attendance/start/{name}", s.command)
	mux.HandleFunc("POST /attendance/pause/{name}", s.command)
	mux.HandleFunc("POST /attendance/resume/{name}", s.command)
	mux.HandleFunc("GET /attendance/status/{name}", s.status)
	mux.HandleFunc("GET /attendance/temp/{name}", s.temp)
	mux.HandleFunc("POST /attendance/finish/{name}", s.finish)
	mux.HandleFunc("POST /attendance/update", s.update)
	mux.HandleFunc("POST /feedback", s.submitFeedback)
	mux.HandleFunc("GET /profiles", s.listProfiles)
	mux.HandleFunc("POST /profiles", s.createProfile)
	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// AddClass registers a class with its roster.
func (s *Server) AddClass(c attendance.Class, roster ...attendance.StudentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = append(s.classes, c)
	s.rosters[c.ID] = roster
}

// SetStatuses queues the statuses returned for className; the last one repeats.
func (s *Server) SetStatuses(className string, statuses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[className] = statuses
}

// SetPartials sets the partial results for className.
func (s *Server) SetPartials(className string, p ...attendance.PartialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partials[className] = p
}

// SetFinal sets the results returned by finish for className.
func (s *Server) SetFinal(className string, r ...attendance.StudentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals[className] = r
}

// AddProfile registers an existing profile.
func (s *Server) AddProfile(p attendance.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, p)
}

// Fail makes every request whose path starts with prefix answer code. Code 0 clears it.
func (s *Server) Fail(prefix string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.failures, prefix)
		return
	}
	s.failures[prefix] = code
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many requests matched method and path prefix.
func (s *Server) Count(method, prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

// Committed returns the batches received on /attendance/update.
func (s *Server) Committed() [][]attendance.StudentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]attendance.StudentRecord(nil), s.committed...)
}

// Feedback returns the verdict reports received.
func (s *Server) Feedback() []attendance.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]attendance.Feedback(nil), s.feedback...)
}

// Enrolled returns the profile creations received.
func (s *Server) Enrolled() []EnrollRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EnrollRequest(nil), s.enrolled...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
		code := 0
		for prefix, c := range s.failures {
			if strings.HasPrefix(r.URL.Path, prefix) {
				code = c
				break
			}
		}
		s.mu.Unlock()
		if code != 0 {
			http.Error(w, `{"detail":"injected failure"}`, code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listClasses(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.classes
	if out == nil {
		out = []attendance.Class{}
	}
	writeJSON(w, out)
}

func (s *Server) createClass(w http.ResponseWriter, r *http.Request) {
	var in attendance.NewClass
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.mu.Lock()
	id := "cls-" + strings.ReplaceAll(strings.ToLower(in.Name), " ", "-")
	s.classes = append(s.classes, attendance.Class{ID: id, Name: in.Name, Department: in.Department, Status: "Not Recorded"})
	s.mu.Unlock()
	writeJSON(w, map[string]string{"message": "Class added successfully", "class_id": id})
}

func (s *Server) roster(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	students, ok := s.rosters[id]
	if !ok {
		http.Error(w, `{"detail":"Class not found"}`, http.StatusNotFound)
		return
	}
	if students == nil {
		students = []attendance.StudentRecord{}
	}
	writeJSON(w, map[string]any{"students": students})
}

func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"class_name": r.PathValue("name"), "message": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := r.PathValue("name")
	queue := s.statuses[name]
	status := attendance.ServiceStatusRecording
	if len(queue) > 0 {
		status = queue[0]
		if len(queue) > 1 {
			s.statuses[name] = queue[1:]
		}
	}
	writeJSON(w, map[string]string{"status": status})
}

func (s *Server) temp(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.partials[r.PathValue("name")]
	if p == nil {
		p = []attendance.PartialRecord{}
	}
	writeJSON(w, map[string]any{"results": p})
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.finals[r.PathValue("name")]
	if res == nil {
		res = []attendance.StudentRecord{}
	}
	writeJSON(w, map[string]any{"status": "completed", "results": res})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var batch []attendance.StudentRecord
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.mu.Lock()
	s.committed = append(s.committed, batch)
	s.mu.Unlock()
	writeJSON(w, map[string]string{"message": "Attendance updated"})
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var fb attendance.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.mu.Lock()
	s.feedback = append(s.feedback, fb)
	verified := 0
	for _, f := range s.feedback {
		if f.StudentID == fb.StudentID && f.Verified {
			verified++
		}
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{"status": "ok", "verified_count": verified})
}

func (s *Server) listProfiles(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.profiles
	if out == nil {
		out = []attendance.Profile{}
	}
	writeJSON(w, out)
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in := attendance.ProfileInput{
		FullName:   r.FormValue("fullName"),
		USN:        r.FormValue("usn"),
		Department: r.FormValue("department"),
		ClassName:  r.FormValue("class_name"),
	}
	var audio []byte
	if f, _, err := r.FormFile("audio"); err == nil {
		audio, _ = io.ReadAll(f)
		f.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.VoiceID == in.USN {
			http.Error(w, `{"detail":"Profile already exists for this USN"}`, http.StatusBadRequest)
			return
		}
	}
	s.enrolled = append(s.enrolled, EnrollRequest{Input: in, Audio: audio})
	s.profiles = append(s.profiles, attendance.Profile{VoiceID: in.USN, Name: in.FullName, Department: in.Department, ClassName: in.ClassName})
	out := attendance.Enrollment{Message: "Voice profile created successfully", StudentID: in.USN}
	if len(audio) > 0 {
		out.AudioPath = "./uploads/" + in.USN + ".wav"
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
