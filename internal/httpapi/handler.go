// Package httpapi exposes the operator console over a gin JSON API.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voiceattend/internal/attendance"
	"voiceattend/internal/auth"
	"voiceattend/internal/dashboard"
)

// maxAudioBytes bounds an enrollment upload.
const maxAudioBytes = 16 << 20

// EventLister reads the audit trail.
type EventLister interface {
	ListEvents(ctx context.Context, f attendance.EventFilter) ([]attendance.StoredEvent, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the console routes.
type Handler struct {
	dash        *dashboard.Dashboard
	profiles    *dashboard.Profiles
	events      EventLister // nil when the audit trail is off
	issuer      auth.Issuer
	operatorKey string
	checks      map[string]HealthCheck
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Dashboard   *dashboard.Dashboard
	Profiles    *dashboard.Profiles
	Events      EventLister
	Issuer      auth.Issuer
	OperatorKey string
	Checks      map[string]HealthCheck
}

func New(d Deps) *Handler {
	return &Handler{
		dash:        d.Dashboard,
		profiles:    d.Profiles,
		events:      d.Events,
		issuer:      d.Issuer,
		operatorKey: d.OperatorKey,
		checks:      d.Checks,
	}
}

// ---------- Health ----------

// Healthz reports every dependency; any failing check makes it 503.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Operators ----------

type tokenRequest struct {
	OperatorID string `json:"operator_id" binding:"required"`
	Key        string `json:"key" binding:"required"`
}

// IssueToken exchanges the operator key for a token pair.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := h.issuer.Login(req.OperatorID, req.Key, h.operatorKey)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, pair)
}

// RefreshToken trades a refresh token for a new pair.
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := h.issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// ---------- Dashboard ----------

func (h *Handler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.dash.Snapshot())
}

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.dash.RefreshClasses(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if classes == nil {
		classes = []attendance.Class{}
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes, "summary": attendance.Summarize(classes)})
}

func (h *Handler) AddClass(c *gin.Context) {
	var req attendance.NewClass
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.dash.AddClass(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"classes": h.dash.Snapshot().Classes})
}

// Expand toggles the expanded class and returns its roster when opened.
func (h *Handler) Expand(c *gin.Context) {
	id := c.Param("id")
	expanded, err := h.dash.ToggleExpand(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"class_id": id, "expanded": expanded}
	if expanded {
		resp["students"] = nonNil(h.dash.Roster(id))
	}
	c.JSON(http.StatusOK, resp)
}

// Roster returns the loaded roster and staged results of a class.
func (h *Handler) Roster(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"class_id": id,
		"state":    h.dash.State(id),
		"students": nonNil(h.dash.Roster(id)),
		"pending":  nonNil(h.dash.Pending(id)),
	})
}

type toggleRequest struct {
	ClassName string `json:"class_name"`
}

// Toggle advances the recording session of a class by one step.
func (h *Handler) Toggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	state, err := h.dash.ToggleSession(c.Request.Context(), id, req.ClassName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class_id": id, "state": state, "status": h.dash.Status()})
}

func (h *Handler) Abort(c *gin.Context) {
	id := c.Param("id")
	if err := h.dash.Abort(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"class_id": id, "state": h.dash.State(id), "status": h.dash.Status()})
}

// Commit writes staged results back; ?class_id= picks a class other than
// the active one.
func (h *Handler) Commit(c *gin.Context) {
	var err error
	if id := c.Query("class_id"); id != "" {
		err = h.dash.CommitClass(c.Request.Context(), id)
	} else {
		err = h.dash.Commit(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": h.dash.Status()})
}

type feedbackRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Verdict   string `json:"verdict" binding:"required"`
}

func (h *Handler) Feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reply, err := h.dash.SubmitFeedback(c.Request.Context(), req.StudentID, req.Verdict)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student_id":     req.StudentID,
		"status":         h.dash.Status(),
		"verified_count": reply.VerifiedCount,
	})
}

// ---------- Profiles ----------

func (h *Handler) ListProfiles(c *gin.Context) {
	profiles, err := h.profiles.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if profiles == nil {
		profiles = []attendance.Profile{}
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// Enroll expects a multipart form with fullName, usn, department,
// class_name and an optional audio file.
func (h *Handler) Enroll(c *gin.Context) {
	var in attendance.ProfileInput
	if err := c.ShouldBind(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		audio    []byte
		filename string
	)
	if fh, err := c.FormFile("audio"); err == nil {
		if fh.Size > maxAudioBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio file too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read audio"})
			return
		}
		defer f.Close()
		if audio, err = io.ReadAll(io.LimitReader(f, maxAudioBytes)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read audio"})
			return
		}
		filename = fh.Filename
	}

	out, err := h.profiles.Enroll(c.Request.Context(), in, audio, filename)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ---------- Audit ----------

// Events lists audit events with class_id, kind, limit and offset filters.
func (h *Handler) Events(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit trail not enabled"})
		return
	}
	f := attendance.EventFilter{
		ClassID: c.Query("class_id"),
		Kind:    c.Query("kind"),
		Limit:   50,
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	events, err := h.events.ListEvents(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []attendance.StoredEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func nonNil(r []attendance.StudentRecord) []attendance.StudentRecord {
	if r == nil {
		return []attendance.StudentRecord{}
	}
	return r
}
