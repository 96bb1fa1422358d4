// Package ban manages the JSON-persisted IP ban list (§4.12) and keeps it
// in sync with the transport's in-memory ban set.
package ban

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gmp-go/core/internal/errs"
)

// Entry is one ban record (§3, §6.3). Nickname/Date/Reason are advisory
// metadata the transport never consults.
type Entry struct {
	Nickname string `json:"Nickname,omitempty"`
	IP       string `json:"IP"`
	Date     string `json:"Date,omitempty"`
	Reason   string `json:"Reason,omitempty"`
}

// Installer is the subset of transport.Transport that Manager needs, kept
// narrow so this package never imports transport directly.
type Installer interface {
	AddBan(ip string, ttl time.Duration)
}

// Manager owns the in-memory ban list and its on-disk JSON file.
type Manager struct {
	path    string
	entries []Entry
}

// Load reads path (an array of Entry objects). A missing file yields an
// empty Manager. Malformed entries (missing IP) are skipped with a
// warning; a root that is not a JSON array is a hard error.
func Load(path string) (*Manager, error) {
	m := &Manager{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s is not a JSON array: %v", errs.ErrMalformedConfig, path, err)
	}

	for i, item := range raw {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			slog.Warn("skipping malformed ban entry", "index", i, "error", err)
			continue
		}
		if e.IP == "" {
			slog.Warn("skipping ban entry with empty IP", "index", i)
			continue
		}
		m.entries = append(m.entries, e)
	}
	return m, nil
}

// InstallInto pushes every loaded entry into installer with a permanent
// (zero) TTL. Callers must do this before the transport's first packet
// handler runs (§8.13).
func (m *Manager) InstallInto(installer Installer) {
	for _, e := range m.entries {
		installer.AddBan(e.IP, 0)
	}
}

// Add appends a new permanent ban and persists it.
func (m *Manager) Add(e Entry) error {
	if e.IP == "" {
		return fmt.Errorf("%w: ban entry requires a non-empty IP", errs.ErrMalformedConfig)
	}
	m.entries = append(m.entries, e)
	return m.Save()
}

// Entries returns a copy of the currently loaded ban list.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Save rewrites the ban file atomically (write-to-temp then rename).
func (m *Manager) Save() error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling ban list: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, m.path, err)
	}
	return nil
}
