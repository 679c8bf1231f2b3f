package dashboard

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceattend/internal/attendance"
	"voiceattend/internal/voiceclient"
	"voiceattend/internal/voiceclient/voicetest"
)

func TestRecordingRoundTripAgainstService(t *testing.T) {
	srv := voicetest.NewServer()
	defer srv.Close()

	const class = "6th Sem A"
	srv.AddClass(attendance.Class{ID: "c1", Name: class, Department: "CSE"},
		attendance.StudentRecord{StudentID: "1RV21CS001", Name: "Asha"},
		attendance.StudentRecord{StudentID: "1RV21CS002", Name: "Bala"},
	)
	srv.SetStatuses(class, attendance.ServiceStatusRecording, attendance.ServiceStatusRecording, attendance.ServiceStatusCompleted)
	srv.SetPartials(class,
		attendance.PartialRecord{StudentID: "1RV21CS001", Confidence: ptr(71.0)},
		attendance.PartialRecord{StudentID: "1RV21CS002", Confidence: ptr(40.0)},
	)
	srv.SetFinal(class, attendance.StudentRecord{StudentID: "1RV21CS001", Name: "Asha", Confidence: 90})

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	d := New(voiceclient.New(srv.URL, time.Second), Options{
		PollInterval: testInterval,
		Now:          func() time.Time { return now },
	})
	defer d.Close()
	ctx := context.Background()

	classes, err := d.RefreshClasses(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 1)

	state, err := d.ToggleSession(ctx, "c1", class)
	require.NoError(t, err)
	require.Equal(t, attendance.StateRecording, state)

	require.Eventually(t, func() bool { return d.State("c1") == attendance.StateCompleted }, waitFor, waitTick)
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/attendance/finish/"))

	pending := d.Pending("c1")
	require.Len(t, pending, 1)
	assert.Equal(t, attendance.StatusPresent, pending[0].Status)
	assert.Equal(t, 1, pending[0].Checkins)
	assert.Equal(t, "2026-03-14", pending[0].Date)
	assert.Equal(t, "09:30:00", pending[0].Time)

	state, err = d.ToggleSession(ctx, "c1", class)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateIdle, state)
	assert.Empty(t, d.Pending("c1"))
	assert.Equal(t, "Attendance updated", d.Status())

	batches := srv.Committed()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "1RV21CS001", batches[0][0].StudentID)
	assert.Equal(t, attendance.StatusPresent, batches[0][0].Status)

	reply, err := d.SubmitFeedback(ctx, "1RV21CS001", "Correct")
	require.NoError(t, err)
	assert.Equal(t, 1, reply.VerifiedCount)
	require.Len(t, srv.Feedback(), 1)
	assert.True(t, srv.Feedback()[0].Verified)
}

func TestServiceErrorsSurfaceThroughDashboard(t *testing.T) {
	srv := voicetest.NewServer()
	defer srv.Close()
	srv.AddClass(attendance.Class{ID: "c1", Name: "6th Sem A"})
	srv.Fail("/attendance/start/", http.StatusInternalServerError)

	d := New(voiceclient.New(srv.URL, time.Second), Options{PollInterval: testInterval})
	defer d.Close()

	state, err := d.ToggleSession(context.Background(), "c1", "6th Sem A")
	var se *voiceclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, attendance.StateIdle, state)
	assert.False(t, d.Polling("c1"))
}
