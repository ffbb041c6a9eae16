package index

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	AllTitles() (map[string]string, error)
	AllTags() ([]string, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
