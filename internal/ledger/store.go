package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrExists is returned by PutIfAbsent when the communication id is already
// in the ledger. Callers treat it as a normal outcome of re-ingestion.
var ErrExists = errors.New("ledger: communication already exists")

// Store is the ledger contract shared by the DynamoDB, Postgres and memory
// backends.
type Store interface {
	// PutIfAbsent inserts rec unless a record with the same communication id
	// exists, in which case it returns ErrExists and leaves the ledger untouched.
	PutIfAbsent(ctx context.Context, rec Record) error
	// MarkSynced sets the sync flag of one record to Synced.
	MarkSynced(ctx context.Context, communicationID string) error
	// QueryBySyncFlag returns every record with the given flag created
	// strictly after the boundary, in no particular order.
	QueryBySyncFlag(ctx context.Context, flag int, after time.Time) ([]Record, error)
}

// FormatTime renders timestamps the way AWS Support reports them, so string
// comparison on timeCreated matches chronological order.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
