// Package downloader drives the client-side resource download state machine
// (§4.8): Idle -> Consent -> Downloading -> Ready | Failed | Cancelled.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// State is a download-session state.
type State int

const (
	StateIdle State = iota
	StateConsent
	StateDownloading
	StateReady
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConsent:
		return "Consent"
	case StateDownloading:
		return "Downloading"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Descriptor announces one resource pack available for download.
type Descriptor struct {
	Name           string
	Path           string // server-relative path, sanitised before use
	ManifestSHA256 string
	ArchiveSHA256  string
	ArchiveSize    int64
}

// Payload is one successfully downloaded and verified resource, handed off
// to the resource loader.
type Payload struct {
	Name         string
	ManifestJSON []byte
	ArchiveBytes []byte
}

// Observer receives consent requests and progress/terminal notifications.
type Observer interface {
	// ConsentForDownload is asked once, with the total byte count across
	// every announced descriptor. Returning false fails the download
	// with reason "declined".
	ConsentForDownload(totalBytes int64) bool
	OnProgress(completed, total int)
	OnReady(payloads []Payload)
	OnFailed(reason string)
	OnCancelled()
}

// Session drives one download attempt against a single server endpoint.
type Session struct {
	serverBaseURL string // e.g. "http://203.0.113.5:8080"
	basePrefix    string // always begins with "/"
	token         string
	observer      Observer
	client        *http.Client

	mu          sync.Mutex
	state       State
	descriptors []Descriptor
	cancelled   atomic.Bool
}

// New constructs a Session. basePrefix is forced to start with "/".
func New(serverBaseURL, basePrefix, token string, observer Observer) *Session {
	if !strings.HasPrefix(basePrefix, "/") {
		basePrefix = "/" + basePrefix
	}
	return &Session{
		serverBaseURL: strings.TrimSuffix(serverBaseURL, "/"),
		basePrefix:    basePrefix,
		token:         token,
		observer:      observer,
		client:        &http.Client{},
		state:         StateIdle,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AnnounceResources stashes the descriptor list (§4.8) and moves the
// session out of Idle into Consent.
func (s *Session) AnnounceResources(descriptors []Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors = descriptors
	s.state = StateConsent
}

// BeginDownload computes the total announced size, asks the observer for
// consent, and if granted runs the download on the calling goroutine. It
// returns once the download has finished (or been cancelled); callers
// that want this asynchronous should invoke it in its own goroutine.
func (s *Session) BeginDownload(ctx context.Context) {
	s.mu.Lock()
	descriptors := append([]Descriptor(nil), s.descriptors...)
	s.mu.Unlock()

	var total int64
	for _, d := range descriptors {
		total += d.ArchiveSize
	}

	if !s.observer.ConsentForDownload(total) {
		s.setState(StateFailed)
		s.observer.OnFailed("declined")
		return
	}

	s.setState(StateDownloading)

	var payloads []Payload
	for i, d := range descriptors {
		if s.cancelled.Load() {
			s.setState(StateCancelled)
			s.observer.OnCancelled()
			return
		}

		payload, err := s.fetchOne(ctx, d)
		if err != nil {
			s.setState(StateFailed)
			s.observer.OnFailed(err.Error())
			return
		}

		payloads = append(payloads, payload)
		s.observer.OnProgress(i+1, len(descriptors))
	}

	s.setState(StateReady)
	s.observer.OnReady(payloads)
}

// StopDownload requests cancellation; the worker honours it at the next
// descriptor boundary (§4.8).
func (s *Session) StopDownload() {
	s.cancelled.Store(true)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fetchOne(ctx context.Context, d Descriptor) (Payload, error) {
	manifestURL := s.resolveURL(d.Path + ".manifest.json")
	archiveURL := s.resolveURL(d.Path)

	manifestBytes, err := s.get(ctx, manifestURL)
	if err != nil {
		return Payload{}, fmt.Errorf("downloading manifest for %s: %w", d.Name, err)
	}
	if sum := sha256.Sum256(manifestBytes); hex.EncodeToString(sum[:]) != d.ManifestSHA256 {
		return Payload{}, fmt.Errorf("manifest hash mismatch for %s", d.Name)
	}

	archiveBytes, err := s.get(ctx, archiveURL)
	if err != nil {
		return Payload{}, fmt.Errorf("downloading archive for %s: %w", d.Name, err)
	}
	if int64(len(archiveBytes)) != d.ArchiveSize {
		return Payload{}, fmt.Errorf("archive size mismatch for %s: got %d want %d", d.Name, len(archiveBytes), d.ArchiveSize)
	}
	if sum := sha256.Sum256(archiveBytes); hex.EncodeToString(sum[:]) != d.ArchiveSHA256 {
		return Payload{}, fmt.Errorf("archive hash mismatch for %s", d.Name)
	}

	return Payload{Name: d.Name, ManifestJSON: manifestBytes, ArchiveBytes: archiveBytes}, nil
}

// resolveURL sanitises path (backslashes to slashes, leading slash
// stripped) and joins it under basePrefix, appending the token if
// non-empty (§4.8 security paragraph).
func (s *Session) resolveURL(path string) string {
	clean := strings.ReplaceAll(path, "\\", "/")
	clean = strings.TrimPrefix(clean, "/")

	u := s.serverBaseURL + s.basePrefix + "/" + clean
	if s.token != "" {
		u += "?token=" + url.QueryEscape(s.token)
	}
	return u
}

func (s *Session) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", u, err)
	}
	return data, nil
}
