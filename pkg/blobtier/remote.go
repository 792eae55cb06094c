package blobtier

import (
	"context"
	"time"
)

// RemoteStore is a BlobStore over a remote Backend. It has no local state and
// can be used on its own as an uncached store.
type RemoteStore struct {
	backend Backend
	opts    options
}

var _ BlobStore = (*RemoteStore)(nil)

// NewRemoteStore creates a store over backend.
func NewRemoteStore(backend Backend, opts ...Option) *RemoteStore {
	return &RemoteStore{
		backend: backend,
		opts:    buildOptions("remote", nil, opts),
	}
}

// Backend returns the wrapped backend.
func (s *RemoteStore) Backend() Backend { return s.backend }

func (s *RemoteStore) Keys() KeyStrategy { return s.opts.keys }

func (s *RemoteStore) Write(ctx context.Context, wc WriteContext) (string, error) {
	return writeWith(ctx, s, wc)
}

// Put stores data under key. For content-addressed keys an object that is
// already present is not uploaded again.
func (s *RemoteStore) Put(ctx context.Context, key string, data []byte) error {
	if s.opts.keys.ContentAddressed() {
		start := time.Now()
		exists, err := s.backend.Exists(ctx, key)
		ObserveRemote(s.opts.metrics, "exists", start, err)
		if err != nil {
			s.opts.logger.WarnContext(ctx, "exists check failed, uploading", "key", key, "error", err)
		} else if exists {
			s.opts.logger.DebugContext(ctx, "already stored", "key", key)
			ObserveAlreadyStored(s.opts.metrics)
			return nil
		}
	}

	start := time.Now()
	err := s.backend.Put(ctx, key, data)
	ObserveRemote(s.opts.metrics, "put", start, err)
	if err != nil {
		return &StorageError{Store: s.opts.name, Key: key, Op: "put", Err: unavailable(err)}
	}
	return nil
}

func (s *RemoteStore) Read(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.backend.Get(ctx, key)
	ObserveRemote(s.opts.metrics, "get", start, err)
	if err != nil {
		return nil, &StorageError{Store: s.opts.name, Key: key, Op: "get", Err: unavailable(err)}
	}
	return data, nil
}

func (s *RemoteStore) Copy(ctx context.Context, key string, dst BlobStore) (string, error) {
	return copyTo(ctx, s, key, dst)
}

func (s *RemoteStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.backend.Delete(ctx, key)
	ObserveRemote(s.opts.metrics, "delete", start, err)
	if err != nil {
		return &StorageError{Store: s.opts.name, Key: key, Op: "delete", Err: unavailable(err)}
	}
	return nil
}

func (s *RemoteStore) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return &StorageError{Store: s.opts.name, Op: "clear", Err: unavailable(err)}
	}
	return nil
}
