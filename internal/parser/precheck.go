package parser

import "bytes"

// DefaultMaxFileSize is the built-in ceiling; overridden by
// config.Sync.MaxFileSizeBytes (itself overridable by CV_MAX_FILE_SIZE).
const DefaultMaxFileSize = 1 << 20 // 1 MiB

// sniffWindow bounds how much of a file is scanned for a NUL byte before
// it is rejected as binary — matching spec.md §4.1's "sampled bytes".
const sniffWindow = 8192

// Precheck reports whether path/content should even be handed to a
// parser: binary files (NUL in the first 8 KiB) and files over maxSize
// are rejected before any read of their structure.
func Precheck(content []byte, maxSize int64) bool {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if int64(len(content)) > maxSize {
		return false
	}
	window := content
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	return !bytes.ContainsRune(window, 0)
}
