package repository

import (
	"context"
	"net/url"

	"SaxoBridge/internal/domain/models"
)

// CredentialStore persists TokenRecords keyed by "<provider>.<user>".
// Load returns models.ErrNotFound when no record exists.
type CredentialStore interface {
	Load(ctx context.Context, key string) (*models.TokenRecord, error)
	Save(ctx context.Context, key string, rec *models.TokenRecord) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// SymbolResolver maps a human code to the provider-native instrument.
// It returns models.ErrNotFound when nothing matches.
type SymbolResolver interface {
	Resolve(ctx context.Context, token, code, assetType string) (models.Instrument, error)
}

// UpstreamREST is a bearer-authenticated JSON client.
type UpstreamREST interface {
	Get(ctx context.Context, token, rawURL string, query url.Values, dest interface{}) error
	Post(ctx context.Context, token, rawURL string, body, dest interface{}) error
	Put(ctx context.Context, token, rawURL string, body, dest interface{}) error
	Delete(ctx context.Context, token, rawURL string) error
}

// StreamTransport opens upstream streaming connections.
type StreamTransport interface {
	Open(ctx context.Context, rawURL string) (StreamConn, error)
}

// StreamConn is one open streaming connection. Read delivers binary
// packets until the connection ends; the error channel then yields the
// close reason once and both channels are closed.
type StreamConn interface {
	Read(ctx context.Context) (<-chan []byte, <-chan error)
	Close() error
}

// TokenSource hands out a currently valid bearer for a user.
type TokenSource interface {
	ValidToken(ctx context.Context, user string) (string, error)
}

// TickSink receives normalized ticks off the streaming path. Offer must not block.
type TickSink interface {
	Offer(t *models.Tick) bool
}

type TickPublisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

type TickStorage interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordTick(kind string)
	RecordError(kind string)
	RecordArchived(backend string, n int)
	RecordLatency(op string, seconds float64)
	SetActiveContexts(n int)
}
