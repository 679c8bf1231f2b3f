package dashboard

import (
	"context"
	"fmt"
	"log"

	"voiceattend/internal/attendance"
	"voiceattend/internal/voiceclient"
)

// SubmitFeedback records the operator's verdict on a student's recognition.
// Every loaded roster and staged batch is updated before the service is
// called, and the update is kept even if the call fails.
func (d *Dashboard) SubmitFeedback(ctx context.Context, studentID, verdict string) (voiceclient.FeedbackReply, error) {
	if studentID == "" {
		return voiceclient.FeedbackReply{}, ErrStudentIDRequired
	}
	v, err := attendance.ParseVerdict(verdict)
	if err != nil {
		return voiceclient.FeedbackReply{}, err
	}

	d.mu.Lock()
	var audioPath, classID string
	for id, roster := range d.rosters {
		if attendance.SetFeedback(roster, studentID, v) && audioPath == "" {
			classID = id
			for _, r := range roster {
				if r.StudentID == studentID {
					audioPath = r.AudioPath
					break
				}
			}
		}
	}
	for _, batch := range d.pending {
		attendance.SetFeedback(batch, studentID, v)
	}
	d.mu.Unlock()

	reply, err := d.svc.SendFeedback(ctx, attendance.Feedback{
		StudentID: studentID,
		AudioPath: audioPath,
		Verified:  v == attendance.VerdictCorrect,
	})
	d.opts.Metrics.FeedbackSent(string(v), err)
	if err != nil {
		log.Printf("dashboard: feedback for %s failed: %v", studentID, err)
		d.setStatus("Failed to send feedback")
		return voiceclient.FeedbackReply{}, fmt.Errorf("send feedback for %s: %w", studentID, err)
	}

	msg := reply.Message
	if msg == "" {
		msg = fmt.Sprintf("Feedback for %s saved as %s", studentID, v)
	}
	d.setTransientStatus(msg, d.opts.AckDelay)

	evt := attendance.NewEvent(attendance.EventFeedback, classID, "")
	evt.StudentID = studentID
	evt.Verdict = v
	evt.Message = msg
	d.emit(evt)
	return reply, nil
}
