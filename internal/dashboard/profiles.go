package dashboard

import (
	"context"
	"fmt"
	"log"
	"strings"

	"voiceattend/internal/attendance"
	"voiceattend/internal/voiceclient"
)

// ProfileService is the enrollment part of the attendance service.
type ProfileService interface {
	ListProfiles(ctx context.Context) ([]attendance.Profile, error)
	CreateProfile(ctx context.Context, in attendance.ProfileInput, audio []byte, filename string) (attendance.Enrollment, error)
}

var _ ProfileService = (*voiceclient.Client)(nil)

// Archiver keeps a copy of enrollment audio and returns where it lives.
type Archiver interface {
	ArchiveAudio(ctx context.Context, data []byte, filename string) (string, error)
}

// Profiles drives voice profile enrollment.
type Profiles struct {
	svc     ProfileService
	archive Archiver
}

// NewProfiles creates the enrollment flow. archive may be nil.
func NewProfiles(svc ProfileService, archive Archiver) *Profiles {
	return &Profiles{svc: svc, archive: archive}
}

// List returns the enrolled profiles.
func (p *Profiles) List(ctx context.Context) ([]attendance.Profile, error) {
	profiles, err := p.svc.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}
	return profiles, nil
}

// Enroll validates and submits a profile with optional audio. When an
// archive is configured the accepted audio is archived too; archive
// failures do not fail the enrollment.
func (p *Profiles) Enroll(ctx context.Context, in attendance.ProfileInput, audio []byte, filename string) (attendance.Enrollment, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.USN = strings.TrimSpace(in.USN)
	in.Department = strings.TrimSpace(in.Department)
	in.ClassName = strings.TrimSpace(in.ClassName)
	if err := in.Validate(); err != nil {
		return attendance.Enrollment{}, err
	}

	out, err := p.svc.CreateProfile(ctx, in, audio, filename)
	if err != nil {
		return attendance.Enrollment{}, fmt.Errorf("create profile %s: %w", in.USN, err)
	}

	if p.archive != nil && len(audio) > 0 {
		name := filename
		if name == "" {
			name = in.USN + ".wav"
		}
		url, err := p.archive.ArchiveAudio(ctx, audio, name)
		if err != nil {
			log.Printf("dashboard: archive audio for %s failed: %v", in.USN, err)
		} else {
			out.ArchiveURL = url
		}
	}
	return out, nil
}
