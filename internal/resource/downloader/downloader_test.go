package downloader_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/resource/downloader"
)

type recordingObserver struct {
	mu         sync.Mutex
	consent    bool
	progress   []int
	ready      []downloader.Payload
	failReason string
	cancelled  bool
}

func (o *recordingObserver) ConsentForDownload(totalBytes int64) bool { return o.consent }
func (o *recordingObserver) OnProgress(completed, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, completed)
}
func (o *recordingObserver) OnReady(payloads []downloader.Payload) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready = payloads
}
func (o *recordingObserver) OnFailed(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failReason = reason
}
func (o *recordingObserver) OnCancelled() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled = true
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newFixtureServer(t *testing.T, manifest, archive []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".manifest.json"):
			_, _ = w.Write(manifest)
		default:
			_, _ = w.Write(archive)
		}
	}))
}

func TestSuccessfulDownloadVerifiesHashesAndReachesReady(t *testing.T) {
	manifest := []byte(`{"name":"testpack"}`)
	archive := []byte("zip-bytes-stand-in")
	srv := newFixtureServer(t, manifest, archive)
	defer srv.Close()

	obs := &recordingObserver{consent: true}
	sess := downloader.New(srv.URL, "/resources", "", obs)
	sess.AnnounceResources([]downloader.Descriptor{{
		Name:           "testpack",
		Path:           "testpack-1.0.0.pak",
		ManifestSHA256: hashOf(manifest),
		ArchiveSHA256:  hashOf(archive),
		ArchiveSize:    int64(len(archive)),
	}})

	sess.BeginDownload(context.Background())

	require.Equal(t, downloader.StateReady, sess.State())
	require.Len(t, obs.ready, 1)
	require.Equal(t, archive, obs.ready[0].ArchiveBytes)
	require.Equal(t, []int{1}, obs.progress)
}

func TestDeclinedConsentFailsWithDeclinedReason(t *testing.T) {
	obs := &recordingObserver{consent: false}
	sess := downloader.New("http://example.invalid", "/resources", "", obs)
	sess.AnnounceResources([]downloader.Descriptor{{Name: "x", Path: "x.pak", ArchiveSize: 10}})

	sess.BeginDownload(context.Background())

	require.Equal(t, downloader.StateFailed, sess.State())
	require.Equal(t, "declined", obs.failReason)
}

func TestArchiveHashMismatchFailsDownload(t *testing.T) {
	manifest := []byte(`{"name":"testpack"}`)
	archive := []byte("zip-bytes-stand-in")
	srv := newFixtureServer(t, manifest, archive)
	defer srv.Close()

	obs := &recordingObserver{consent: true}
	sess := downloader.New(srv.URL, "/resources", "", obs)
	sess.AnnounceResources([]downloader.Descriptor{{
		Name:           "testpack",
		Path:           "testpack-1.0.0.pak",
		ManifestSHA256: hashOf(manifest),
		ArchiveSHA256:  "0000000000000000000000000000000000000000000000000000000000000",
		ArchiveSize:    int64(len(archive)),
	}})

	sess.BeginDownload(context.Background())

	require.Equal(t, downloader.StateFailed, sess.State())
	require.Contains(t, obs.failReason, "hash mismatch")
}

func TestStopDownloadCancelsAtNextBoundary(t *testing.T) {
	manifest := []byte(`{"name":"testpack"}`)
	archive := []byte("zip-bytes-stand-in")
	srv := newFixtureServer(t, manifest, archive)
	defer srv.Close()

	obs := &recordingObserver{consent: true}
	sess := downloader.New(srv.URL, "/resources", "", obs)
	sess.AnnounceResources([]downloader.Descriptor{
		{Name: "a", Path: "a.pak", ManifestSHA256: hashOf(manifest), ArchiveSHA256: hashOf(archive), ArchiveSize: int64(len(archive))},
		{Name: "b", Path: "b.pak", ManifestSHA256: hashOf(manifest), ArchiveSHA256: hashOf(archive), ArchiveSize: int64(len(archive))},
	})

	sess.StopDownload()
	sess.BeginDownload(context.Background())

	require.Equal(t, downloader.StateCancelled, sess.State())
	require.True(t, obs.cancelled)
}

func TestPathSanitizationStripsLeadingSlashAndNormalizesBackslashes(t *testing.T) {
	var gotPath string
	manifest := []byte(`{"name":"testpack"}`)
	archive := []byte("zip-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.HasSuffix(r.URL.Path, ".manifest.json") {
			_, _ = w.Write(manifest)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	obs := &recordingObserver{consent: true}
	sess := downloader.New(srv.URL, "resources", "", obs)
	sess.AnnounceResources([]downloader.Descriptor{{
		Name:           "testpack",
		Path:           `\sub\testpack.pak`,
		ManifestSHA256: hashOf(manifest),
		ArchiveSHA256:  hashOf(archive),
		ArchiveSize:    int64(len(archive)),
	}})

	sess.BeginDownload(context.Background())

	require.Equal(t, downloader.StateReady, sess.State())
	require.Equal(t, "/resources/sub/testpack.pak", gotPath)
}
