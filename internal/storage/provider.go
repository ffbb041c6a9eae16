// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// List walks dir and returns metadata for every .md file under it.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Create writes a new file; fails with os.ErrExist if path already exists.
	Create(path string, content []byte) error
	// Exists reports whether a file exists at path.
	Exists(path string) bool
	// EnsureFolder creates the directory at path (and parents) if missing.
	EnsureFolder(path string) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
