// Package errs defines the error-kind taxonomy from §7 as sentinel values.
// Call sites wrap a sentinel with fmt.Errorf("...: %w", err) to attach
// context; callers use errors.Is against the sentinel to branch on kind.
package errs

import "errors"

// Network errors: send/receive failed, peer not found.
var (
	ErrPeerNotFound = errors.New("network: peer not found")
	ErrSendFailed   = errors.New("network: send failed")
)

// Protocol errors: malformed packet, unknown opcode, truncated field,
// opcode received in the wrong lifecycle state.
var (
	ErrMalformedPacket  = errors.New("protocol: malformed packet")
	ErrUnknownOpcode    = errors.New("protocol: unknown opcode")
	ErrTruncatedField   = errors.New("protocol: truncated field")
	ErrWrongLifecycle   = errors.New("protocol: opcode received in wrong lifecycle state")
)

// Integrity errors: hash/size mismatch on a resource archive or file.
var (
	ErrHashMismatch = errors.New("integrity: hash mismatch")
	ErrSizeMismatch = errors.New("integrity: size mismatch")
)

// Resource errors: manifest parse error, Lua compile failure, missing
// entrypoint, path traversal attempt.
var (
	ErrManifestParse   = errors.New("resource: manifest parse error")
	ErrResourceBuild    = errors.New("resource: build failure")
	ErrMissingEntrypoint = errors.New("resource: missing entrypoint")
	ErrPathTraversal    = errors.New("resource: path traversal attempt")
	ErrUnknownFormat    = errors.New("resource: unknown archive format")
	ErrNotFound         = errors.New("resource: file not found")
)

// Security errors: CRC gate failure, ban list match.
var (
	ErrCRCGateFailed = errors.New("security: crc gate failed")
	ErrBanned        = errors.New("security: peer is banned")
)

// Script errors: event payload type mismatch, unknown event name on
// subscribe, call into an unloaded resource.
var (
	ErrUnknownEvent      = errors.New("script: unknown event")
	ErrPayloadTypeMismatch = errors.New("script: event payload type mismatch")
	ErrResourceUnloaded  = errors.New("script: call into unloaded resource")
)

// Config errors: malformed TOML, out-of-range value.
var (
	ErrMalformedConfig = errors.New("config: malformed toml")
	ErrOutOfRange      = errors.New("config: value out of range")
)
