// Package service abstracts a record-management-service instance: schema
// discovery, querying, and batch record creation. Backends under service/
// adapt concrete stores to these interfaces.
package service

import (
	"context"
	"errors"

	"github.com/stomita/salesforce-migration-automatic/schema"
)

type Config struct {
	DbName   string
	User     string
	Password string
	Host     string
	Port     int
	Socket   string
	SslMode  string
}

// SaveResult is the per-record outcome of a Create call. Results correspond
// positionally to the submitted records.
type SaveResult struct {
	Success bool
	ID      string
	Errors  []string
}

// ErrStopIteration may be returned from a Query callback to end the stream
// early without surfacing an error.
var ErrStopIteration = errors.New("stop iteration")

// DataClient queries and creates records on a service instance.
//
// Query streams matching records to each in result order; a callback returning
// ErrStopIteration terminates the stream cleanly. Create submits one batch per
// object and returns positional results; per-record failures are reported in
// the results, transport failures through the error.
type DataClient interface {
	Query(ctx context.Context, q Query, each func(Record) error) error
	Create(ctx context.Context, object string, records []Record) ([]SaveResult, error)
	Close() error
}

// Connection is a full client for one service instance.
type Connection interface {
	schema.Client
	DataClient
}
