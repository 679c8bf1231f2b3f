package voiceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voiceattend/internal/attendance"
)

// StatusError is returned when the attendance service answers with a non-2xx status.
type StatusError struct {
	Call   string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("attendance service %s: %s", e.Call, e.Status)
	}
	return fmt.Sprintf("attendance service %s: %s: %s", e.Call, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Observer is told about every finished call.
type Observer func(call string, started time.Time, err error)

// Client calls the voice attendance service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Observe Observer
}

// New creates a client with the given timeout (30s when zero).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Health checks that the service answers on its root route.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/", nil, nil)
}

// ListClasses returns every class.
func (c *Client) ListClasses(ctx context.Context) ([]attendance.Class, error) {
	var out []attendance.Class
	if err := c.do(ctx, "list_classes", http.MethodGet, "/classes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateClass adds a class.
func (c *Client) CreateClass(ctx context.Context, in attendance.NewClass) error {
	return c.do(ctx, "create_class", http.MethodPost, "/classes", in, nil)
}

// ListRoster returns the students of a class.
func (c *Client) ListRoster(ctx context.Context, classID string) ([]attendance.StudentRecord, error) {
	var out struct {
		Students []attendance.StudentRecord `json:"students"`
	}
	if err := c.do(ctx, "list_roster", http.MethodGet, "/classes/"+url.PathEscape(classID)+"/students", nil, &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

// StartSession starts voice recording for a class.
func (c *Client) StartSession(ctx context.Context, className string) error {
	return c.do(ctx, "start", http.MethodPost, sessionPath("start", className), nil, nil)
}

// PauseSession pauses a running session.
func (c *Client) PauseSession(ctx context.Context, className string) error {
	return c.do(ctx, "pause", http.MethodPost, sessionPath("pause", className), nil, nil)
}

// ResumeSession resumes a paused session.
func (c *Client) ResumeSession(ctx context.Context, className string) error {
	return c.do(ctx, "resume", http.MethodPost, sessionPath("resume", className), nil, nil)
}

// SessionStatus returns the raw session status reported by the service.
func (c *Client) SessionStatus(ctx context.Context, className string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "status", http.MethodGet, sessionPath("status", className), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// PartialResults returns the in-progress results of a session.
func (c *Client) PartialResults(ctx context.Context, className string) ([]attendance.PartialRecord, error) {
	var out struct {
		Results []attendance.PartialRecord `json:"results"`
	}
	if err := c.do(ctx, "temp", http.MethodGet, sessionPath("temp", className), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// FinishSession finalizes a session and returns its results.
func (c *Client) FinishSession(ctx context.Context, className string) ([]attendance.StudentRecord, error) {
	var out struct {
		Results []attendance.StudentRecord `json:"results"`
	}
	if err := c.do(ctx, "finish", http.MethodPost, sessionPath("finish", className), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// CommitUpdates writes a batch of records back and returns the service message.
func (c *Client) CommitUpdates(ctx context.Context, records []attendance.StudentRecord) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, "update", http.MethodPost, "/attendance/update", records, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// FeedbackReply is the answer to a verdict report.
type FeedbackReply struct {
	Message       string `json:"message"`
	Status        string `json:"status"`
	VerifiedCount int    `json:"verified_count"`
}

// SendFeedback reports an operator verdict.
func (c *Client) SendFeedback(ctx context.Context, fb attendance.Feedback) (FeedbackReply, error) {
	var out FeedbackReply
	if err := c.do(ctx, "feedback", http.MethodPost, "/feedback", fb, &out); err != nil {
		return FeedbackReply{}, err
	}
	return out, nil
}

// ListProfiles returns enrolled voice profiles.
func (c *Client) ListProfiles(ctx context.Context) ([]attendance.Profile, error) {
	var out []attendance.Profile
	if err := c.do(ctx, "list_profiles", http.MethodGet, "/profiles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProfile enrolls a voice profile. audio may be nil.
func (c *Client) CreateProfile(ctx context.Context, in attendance.ProfileInput, audio []byte, filename string) (attendance.Enrollment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("fullName", in.FullName)
	_ = w.WriteField("usn", in.USN)
	_ = w.WriteField("department", in.Department)
	_ = w.WriteField("class_name", in.ClassName)
	if len(audio) > 0 {
		if filename == "" {
			filename = in.USN + ".wav"
		}
		part, err := w.CreateFormFile("audio", filename)
		if err != nil {
			return attendance.Enrollment{}, fmt.Errorf("create audio part: %w", err)
		}
		if _, err := part.Write(audio); err != nil {
			return attendance.Enrollment{}, fmt.Errorf("write audio part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return attendance.Enrollment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/profiles", &buf)
	if err != nil {
		return attendance.Enrollment{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out attendance.Enrollment
	if err := c.send(req, "create_profile", &out); err != nil {
		return attendance.Enrollment{}, err
	}
	return out, nil
}

func sessionPath(action, className string) string {
	return "/attendance/" + action + "/" + url.PathEscape(className)
}

func (c *Client) do(ctx context.Context, call, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", call, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, call, out)
}

func (c *Client) send(req *http.Request, call string, out any) (err error) {
	started := time.Now()
	if c.Observe != nil {
		defer func() { c.Observe(call, started, err) }()
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("attendance service %s request failed: %w", call, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Call: call, Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(bodyBytes))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s response: %w", call, err)
	}
	return nil
}
