// Package types holds the shared resource-pack data model (§3, §6.3):
// the manifest and its file/archive metadata, common to the packer,
// loader, and downloader.
package types

// FileMeta describes one file inside an archive.
type FileMeta struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	Cache  bool   `json:"cache"`
}

// ArchiveMeta describes the archive itself.
type ArchiveMeta struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest is the full §3 ResourcePack manifest. Signature is reserved
// for a future Ed25519 signing scheme and is always null in v1.
type Manifest struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Format      string      `json:"format"`
	Archive     ArchiveMeta `json:"archive"`
	Files       []FileMeta  `json:"files"`
	Entrypoints []string    `json:"entrypoints"`
	CreatedUTC  string      `json:"created_utc"`
	Signature   *string     `json:"signature"`
}

// FileByPath returns the metadata for path, if present.
func (m *Manifest) FileByPath(path string) (FileMeta, bool) {
	for _, f := range m.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileMeta{}, false
}
