package harvest

import (
	"context"
	"io"
	"time"
)

// RecordStore persists business records and their harvest results.
type RecordStore interface {
	FetchPending(ctx context.Context, limit int) ([]BusinessRecord, error)
	UpdateStatus(ctx context.Context, id string, update Update) error
}

// AdminStore adds the maintenance operations used by the CLI and API.
type AdminStore interface {
	RecordStore
	ResetStatus(ctx context.Context) (int64, error)
	List(ctx context.Context, limit int) ([]BusinessRecord, int64, error)
	Stats(ctx context.Context) (Stats, error)
	Exportable(ctx context.Context) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// LightFetcher retrieves page content without executing scripts.
type LightFetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Session is a stateful rendering session. It is owned by one harvest at a time.
type Session interface {
	// Navigate loads url and returns the rendered document.
	Navigate(ctx context.Context, url string) (*Page, error)
	// Evaluate runs script in the current document and decodes the result into out.
	Evaluate(ctx context.Context, script string, out any) error
	// Alive reports whether the session can still be used.
	Alive(ctx context.Context) bool
}

// SessionPool hands out rendering sessions. Release must be called exactly once
// per acquired session.
type SessionPool interface {
	Acquire(ctx context.Context) (Session, error)
	Release(session Session)
}

// BlobStore writes export artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes harvest events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
