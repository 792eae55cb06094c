package blobtier

import (
	"context"
	"time"
)

// Backend is a durable remote object store. Put overwrites any previous value
// for the key. Get and Delete return an error wrapping ErrNotFound when the
// key is absent.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Clear removes every object the backend holds.
	Clear(ctx context.Context) error
}

// PrefixClearer is implemented by backends that can remove every object
// whose key starts with a prefix.
type PrefixClearer interface {
	ClearPrefix(ctx context.Context, prefix string) error
}

// RestoreStatus reports the state of a restore request on an archived object.
type RestoreStatus struct {
	// Ongoing is true while the backend is still restoring the object.
	Ongoing bool
	// Available is true when a readable copy exists.
	Available bool
	// Expiry is when the restored copy goes away. Zero when unknown or when
	// the object is not archived.
	Expiry time.Time
}

// Restorer is implemented by backends with an archive storage class that
// needs an explicit restore step before archived objects can be read.
type Restorer interface {
	// Restore requests a temporary readable copy kept for days. Requesting a
	// restore that is already in progress is not an error.
	Restore(ctx context.Context, key string, days int) error
	RestoreStatus(ctx context.Context, key string) (RestoreStatus, error)
}

// BlobStore is the capability shared by every store tier.
type BlobStore interface {
	// Keys returns the strategy used by Write.
	Keys() KeyStrategy
	// Write stores the content under a key computed by Keys and returns it.
	Write(ctx context.Context, wc WriteContext) (string, error)
	// Put stores data under a caller provided key.
	Put(ctx context.Context, key string, data []byte) error
	// Read returns the bytes stored under key.
	Read(ctx context.Context, key string) ([]byte, error)
	// Copy reads key from this store and stores it under the same key in dst.
	Copy(ctx context.Context, key string, dst BlobStore) (string, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// KeyStrategy derives the key for a write.
type KeyStrategy interface {
	Key(wc WriteContext) (string, error)
	// ContentAddressed reports whether identical content always maps to the
	// same key.
	ContentAddressed() bool
}

// Metrics receives store events. Every store accepts a nil Metrics.
type Metrics interface {
	ObserveCache(hit bool)
	ObserveRemote(op string, duration time.Duration, err error)
	ObserveAlreadyStored()
	ObserveCommit(entries int, err error)
	ObserveReadDegraded(store string)
	ObserveColdTransition(state string)
}
