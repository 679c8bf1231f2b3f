package attendance

import (
	"errors"
	"strings"
)

// SessionState is the recording lifecycle of one class.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRecording SessionState = "recording"
	StatePaused    SessionState = "paused"
	StateCompleted SessionState = "completed"
)

// Status values reported by GET /attendance/status/{className}.
const (
	ServiceStatusRecording = "recording"
	ServiceStatusPaused    = "paused"
	ServiceStatusCompleted = "completed"
)

// Presence labels.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// PresenceThreshold is the lowest confidence that still counts as present.
const PresenceThreshold = 85.0

// Verdict is the operator's judgement of a recognition result.
type Verdict string

const (
	VerdictUnset     Verdict = ""
	VerdictCorrect   Verdict = "Correct"
	VerdictIncorrect Verdict = "Incorrect"
)

var (
	ErrInvalidVerdict      = errors.New("verdict must be Correct or Incorrect")
	ErrClassNameRequired   = errors.New("class name required")
	ErrFullNameRequired    = errors.New("full name required")
	ErrUSNRequired         = errors.New("usn required")
	ErrProfileClassMissing = errors.New("class name required for profile")
)

// ParseVerdict accepts only the two verdicts an operator may submit.
func ParseVerdict(s string) (Verdict, error) {
	switch Verdict(strings.TrimSpace(s)) {
	case VerdictCorrect:
		return VerdictCorrect, nil
	case VerdictIncorrect:
		return VerdictIncorrect, nil
	}
	return VerdictUnset, ErrInvalidVerdict
}

// Class is one course section as listed by the attendance service.
type Class struct {
	ID         string  `json:"_id"`
	Name       string  `json:"class_name"`
	Department string  `json:"department"`
	Date       string  `json:"date,omitempty"`
	Time       string  `json:"time,omitempty"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status,omitempty"`
}

// NewClass is the create-class request body.
type NewClass struct {
	Name       string `json:"class_name"`
	Department string `json:"department"`
}

// Validate checks the required fields.
func (n NewClass) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return ErrClassNameRequired
	}
	return nil
}

// StudentRecord is one student's result within a class roster.
type StudentRecord struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status,omitempty"`
	Checkins   int     `json:"checkins"`
	Date       string  `json:"date,omitempty"`
	Time       string  `json:"time,omitempty"`
	Feedback   Verdict `json:"feedback"`
	AudioPath  string  `json:"audio_path,omitempty"`
}

// PartialRecord is an in-progress result. Only non-nil fields are applied.
type PartialRecord struct {
	StudentID  string   `json:"student_id"`
	Name       *string  `json:"name,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Status     *string  `json:"status,omitempty"`
	Checkins   *int     `json:"checkins,omitempty"`
	Date       *string  `json:"date,omitempty"`
	Time       *string  `json:"time,omitempty"`
	Feedback   *Verdict `json:"feedback,omitempty"`
	AudioPath  *string  `json:"audio_path,omitempty"`
}

// ApplyTo overwrites the fields of r that p carries.
func (p PartialRecord) ApplyTo(r *StudentRecord) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Confidence != nil {
		r.Confidence = *p.Confidence
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Checkins != nil {
		r.Checkins = *p.Checkins
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.Feedback != nil {
		r.Feedback = *p.Feedback
	}
	if p.AudioPath != nil {
		r.AudioPath = *p.AudioPath
	}
}

// Feedback is the verdict report sent to the service.
type Feedback struct {
	StudentID string `json:"student_id"`
	AudioPath string `json:"audio_path"`
	Verified  bool   `json:"verified"`
}

// ProfileDayStats is the per-day recognition summary kept on a profile.
type ProfileDayStats struct {
	Confidences []float64 `json:"confidences,omitempty"`
	Checkins    int       `json:"checkins"`
}

// Profile is an enrolled voice profile.
type Profile struct {
	VoiceID         string                     `json:"voiceId"`
	Name            string                     `json:"name"`
	Department      string                     `json:"department"`
	ClassName       string                     `json:"class_name"`
	LastUpdated     string                     `json:"lastUpdated,omitempty"`
	VoiceSamples    []string                   `json:"voice_samples,omitempty"`
	VerifiedSamples []string                   `json:"verified_samples,omitempty"`
	Stats           map[string]ProfileDayStats `json:"stats,omitempty"`
}

// ProfileInput is the enrollment form.
type ProfileInput struct {
	FullName   string `json:"fullName" form:"fullName"`
	USN        string `json:"usn" form:"usn"`
	Department string `json:"department" form:"department"`
	ClassName  string `json:"class_name" form:"class_name"`
}

// Validate checks the fields the service requires.
func (p ProfileInput) Validate() error {
	switch {
	case strings.TrimSpace(p.FullName) == "":
		return ErrFullNameRequired
	case strings.TrimSpace(p.USN) == "":
		return ErrUSNRequired
	case strings.TrimSpace(p.ClassName) == "":
		return ErrProfileClassMissing
	}
	return nil
}

// Enrollment is the service's answer to a profile creation.
type Enrollment struct {
	Message    string `json:"message"`
	StudentID  string `json:"student_id"`
	AudioPath  string `json:"audio_path,omitempty"`
	ArchiveURL string `json:"archive_url,omitempty"`
}
