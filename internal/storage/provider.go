// Package storage defines the content-directory file abstraction that backs
// every collection.
package storage

// Provider is the interface for content file operations. Paths are relative
// to the content root.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
}
