package archive

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveAudio(t *testing.T) {
	var (
		path   string
		fields = map[string]string{}
		upload []byte
		name   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		upload, _ = io.ReadAll(f)
		name = hdr.Filename
		fmt.Fprint(w, `{"public_id":"samples/1RV21CS001","secure_url":"https://res.example/1RV21CS001.wav","bytes":4}`)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "samples")
	c.BaseURL = srv.URL
	c.Now = func() time.Time { return time.Unix(1700000000, 0) }

	url, err := c.ArchiveAudio(context.Background(), []byte("RIFF"), "uploads/1RV21CS001.wav")
	require.NoError(t, err)

	assert.Equal(t, "https://res.example/1RV21CS001.wav", url)
	assert.Equal(t, "/demo/video/upload", path)
	assert.Equal(t, []byte("RIFF"), upload)
	assert.Equal(t, "1RV21CS001.wav", name)
	assert.Equal(t, "key", fields["api_key"])
	assert.Equal(t, "1RV21CS001", fields["public_id"])

	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=samples&public_id=1RV21CS001&timestamp=1700000000secret")))
	assert.Equal(t, want, fields["signature"])
}

func TestArchiveAudioErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "wrong", "")
	c.BaseURL = srv.URL

	_, err := c.ArchiveAudio(context.Background(), []byte("RIFF"), "a.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(401)")

	_, err = c.ArchiveAudio(context.Background(), nil, "a.wav")
	assert.Error(t, err)
}

func TestPublicID(t *testing.T) {
	tests := map[string]string{
		"a.wav":         "a",
		"dir/b.mp3":     "b",
		`C:\tmp\c.webm`: "c",
		"noext":         "noext",
		".hidden":       ".hidden",
	}
	for in, want := range tests {
		assert.Equal(t, want, publicID(in), in)
	}
}
