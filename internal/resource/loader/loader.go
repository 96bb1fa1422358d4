// Package loader verifies and mounts resource-pack archives (§4.7):
// manifest parsing, optional integrity verification, and random-access
// file reads with per-file hash checks.
package loader

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gmp-go/core/internal/errs"
	"github.com/gmp-go/core/internal/resource/types"
)

// Pack is a mounted, verified resource archive.
type Pack struct {
	Manifest types.Manifest
	archive  *zip.Reader
	rawSize  int64
}

// Load parses manifestPath and mounts the .pak archive found alongside it
// (same directory, filename from the manifest's own Archive.Path — only
// the base name is honoured, per §4.7's "ignore manifest's embedded
// relative path components for security"). If verifyIntegrity, the
// archive is stream-hashed and compared against the manifest.
func Load(manifestPath string, verifyIntegrity bool) (*Pack, error) {
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", errs.ErrManifestParse, manifestPath, err)
	}

	archivePath := filepath.Join(filepath.Dir(manifestPath), filepath.Base(filepath.FromSlash(filepathBase(manifestBytes))))
	archiveBytes, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading archive %s: %v", errs.ErrNotFound, archivePath, err)
	}

	return LoadFromMemory(manifestBytes, archiveBytes, verifyIntegrity)
}

func filepathBase(manifestBytes []byte) string {
	var probe struct {
		Archive struct {
			Path string `json:"path"`
		} `json:"archive"`
	}
	if err := json.Unmarshal(manifestBytes, &probe); err != nil {
		return ""
	}
	return probe.Archive.Path
}

// LoadFromMemory is Load without touching disk: manifest and archive
// bytes are both already in memory.
func LoadFromMemory(manifestBytes, archiveBytes []byte, verifyIntegrity bool) (*Pack, error) {
	var manifest types.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrManifestParse, err)
	}
	if manifest.Format != "zip" {
		return nil, fmt.Errorf("%w: unknown format %q", errs.ErrUnknownFormat, manifest.Format)
	}

	if int64(len(archiveBytes)) != manifest.Archive.Size {
		return nil, fmt.Errorf("%w: archive is %d bytes, manifest declares %d", errs.ErrSizeMismatch, len(archiveBytes), manifest.Archive.Size)
	}

	if verifyIntegrity {
		sum := sha256.Sum256(archiveBytes)
		if hex.EncodeToString(sum[:]) != manifest.Archive.SHA256 {
			return nil, fmt.Errorf("%w: archive hash does not match manifest", errs.ErrHashMismatch)
		}
	}

	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening archive: %v", errs.ErrManifestParse, err)
	}

	return &Pack{Manifest: manifest, archive: zr, rawSize: int64(len(archiveBytes))}, nil
}

// LoadFile opens path (an exact entry match) and returns its uncompressed
// bytes, optionally verified against the manifest's per-file hash.
func (p *Pack) LoadFile(path string, verifyHash bool) ([]byte, error) {
	meta, ok := p.Manifest.FileByPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, path)
	}

	f, err := p.archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrNotFound, path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if int64(len(data)) != meta.Size {
		return nil, fmt.Errorf("%w: %s is %d bytes, manifest declares %d", errs.ErrSizeMismatch, path, len(data), meta.Size)
	}

	if verifyHash {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != meta.SHA256 {
			return nil, fmt.Errorf("%w: %s", errs.ErrHashMismatch, path)
		}
	}

	return data, nil
}

// Files lists every path the manifest carries.
func (p *Pack) Files() []string {
	out := make([]string, 0, len(p.Manifest.Files))
	for _, f := range p.Manifest.Files {
		out = append(out, f.Path)
	}
	return out
}
