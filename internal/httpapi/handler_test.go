package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceattend/internal/attendance"
	"voiceattend/internal/auth"
	"voiceattend/internal/dashboard"
	"voiceattend/internal/voiceclient"
	"voiceattend/internal/voiceclient/voicetest"
)

type fakeEvents struct {
	got attendance.EventFilter
	err error
}

func (f *fakeEvents) ListEvents(_ context.Context, filter attendance.EventFilter) ([]attendance.StoredEvent, error) {
	f.got = filter
	if f.err != nil {
		return nil, f.err
	}
	return []attendance.StoredEvent{{ID: "e1", Kind: string(attendance.EventSessionCommitted), ClassID: filter.ClassID}}, nil
}

type testAPI struct {
	router *gin.Engine
	srv    *voicetest.Server
	dash   *dashboard.Dashboard
	token  string
	events *fakeEvents
}

func newTestAPI(t *testing.T, events EventLister) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := voicetest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddClass(attendance.Class{ID: "c1", Name: "6th Sem A", Department: "CSE"},
		attendance.StudentRecord{StudentID: "s1", Name: "Asha"})

	client := voiceclient.New(srv.URL, time.Second)
	d := dashboard.New(client, dashboard.Options{PollInterval: 10 * time.Millisecond, AckDelay: time.Minute})
	t.Cleanup(d.Close)

	issuer := auth.Issuer{Name: "test", Key: "k", AccessTTL: time.Minute, RefreshTTL: time.Hour}
	h := New(Deps{
		Dashboard:   d,
		Profiles:    dashboard.NewProfiles(client, nil),
		Events:      events,
		Issuer:      issuer,
		OperatorKey: "operator-secret",
		Checks: map[string]HealthCheck{
			"service": func(ctx context.Context) bool { return client.Health(ctx) == nil },
		},
	})
	pair, err := issuer.Login("op-1", "operator-secret", "operator-secret")
	require.NoError(t, err)

	api := &testAPI{router: NewRouter(h, RouterOptions{}), srv: srv, dash: d, token: pair.AccessToken}
	if fe, ok := events.(*fakeEvents); ok {
		api.events = fe
	}
	return api
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, nil)
	w := api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["service"])

	api.srv.Fail("/", http.StatusInternalServerError)
	w = api.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestOperatorToken(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodPost, "/v1/operators/token", gin.H{"operator_id": "op-1", "key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodPost, "/v1/operators/token", gin.H{"operator_id": "op-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/v1/operators/token", gin.H{"operator_id": "op-1", "key": "operator-secret"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["access_token"])

	w = api.do(http.MethodPost, "/v1/operators/refresh", gin.H{"refresh_token": body["refresh_token"]})
	assert.Equal(t, http.StatusOK, w.Code)

	api.token = "forged"
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/v1/dashboard", nil).Code)
}

func TestClassRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodGet, "/v1/classes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["classes"], 1)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/v1/classes", gin.H{"class_name": " "}).Code)
	w = api.do(http.MethodPost, "/v1/classes", gin.H{"class_name": "7th Sem B", "department": "ECE"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decode(t, w)["classes"], 2)

	w = api.do(http.MethodPost, "/v1/classes/c1/expand", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["expanded"])
	assert.Len(t, body["students"], 1)

	w = api.do(http.MethodPost, "/v1/classes/missing/expand", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", decode(t, w)["expanded_class"])
}

func TestSessionRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodPost, "/v1/classes/c1/toggle", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Class name missing", api.dash.Status())

	w = api.do(http.MethodPost, "/v1/classes/c1/toggle", gin.H{"class_name": "6th Sem A"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(attendance.StateRecording), decode(t, w)["state"])

	w = api.do(http.MethodPost, "/v1/classes/c1/toggle", gin.H{"class_name": "6th Sem A"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(attendance.StatePaused), decode(t, w)["state"])

	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/v1/commit", nil).Code)

	w = api.do(http.MethodPost, "/v1/classes/c1/abort", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(attendance.StateIdle), decode(t, w)["state"])

	w = api.do(http.MethodGet, "/v1/classes/c1/roster", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["students"], 1, "roster preloaded by start")

	api.srv.Fail("/attendance/start/", http.StatusInternalServerError)
	w = api.do(http.MethodPost, "/v1/classes/c1/toggle", gin.H{"class_name": "6th Sem A"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, attendance.StateIdle, api.dash.State("c1"))
}

func TestFeedbackRoute(t *testing.T) {
	api := newTestAPI(t, nil)

	w := api.do(http.MethodPost, "/v1/feedback", gin.H{"student_id": "s1", "verdict": "Maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, api.srv.Feedback())

	w = api.do(http.MethodPost, "/v1/feedback", gin.H{"student_id": "s1", "verdict": "Correct"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["verified_count"])
	assert.Equal(t, "Feedback for s1 saved as Correct", body["status"])
}

func TestProfileRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	enroll := func(usn string, audio []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("fullName", "Asha Rao")
		_ = mw.WriteField("usn", usn)
		_ = mw.WriteField("department", "CSE")
		_ = mw.WriteField("class_name", "6th Sem A")
		if audio != nil {
			part, _ := mw.CreateFormFile("audio", "asha.wav")
			_, _ = part.Write(audio)
		}
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/v1/profiles", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+api.token)
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		return w
	}

	w := enroll("1RV21CS001", []byte("RIFF"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "1RV21CS001", decode(t, w)["student_id"])
	require.Len(t, api.srv.Enrolled(), 1)
	assert.Equal(t, []byte("RIFF"), api.srv.Enrolled()[0].Audio)

	assert.Equal(t, http.StatusBadRequest, enroll("1RV21CS001", nil).Code, "duplicate usn")
	assert.Equal(t, http.StatusBadRequest, enroll(" ", nil).Code)

	w = api.do(http.MethodGet, "/v1/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["profiles"], 1)
}

func TestEventsRoute(t *testing.T) {
	api := newTestAPI(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, api.do(http.MethodGet, "/v1/events", nil).Code)

	api = newTestAPI(t, &fakeEvents{})
	w := api.do(http.MethodGet, "/v1/events?class_id=c1&kind=session.committed&limit=5&offset=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["events"], 1)
	assert.Equal(t, attendance.EventFilter{ClassID: "c1", Kind: "session.committed", Limit: 5, Offset: 10}, api.events.got)

	api.events.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, api.do(http.MethodGet, "/v1/events", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{attendance.ErrClassNameRequired, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", attendance.ErrInvalidVerdict), http.StatusBadRequest},
		{dashboard.ErrNothingToUpdate, http.StatusConflict},
		{dashboard.ErrPendingCommit, http.StatusConflict},
		{dashboard.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("load: %w", &voiceclient.StatusError{Code: http.StatusNotFound}), http.StatusNotFound},
		{&voiceclient.StatusError{Code: http.StatusBadRequest}, http.StatusBadRequest},
		{&voiceclient.StatusError{Code: http.StatusInternalServerError}, http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
