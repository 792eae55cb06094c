// Package blobtier provides tiered blob storage: a remote object store,
// fronted by a local disk cache, fronted by a per-transaction transient
// buffer.
//
// Each tier is a BlobStore decorator that adds one concern to the store it
// wraps:
//
//	RemoteStore        durable key/bytes storage over a Backend (memory, fs, s3)
//	CachingStore       local disk cache with atomic cache files
//	TransactionalStore writes buffered per transaction until commit
//
// Keys are produced by a KeyStrategy. DigestKeyStrategy yields
// content-addressed keys (identical bytes, identical key). RecordKeyStrategy
// yields owner scoped keys of the form <docId>@<ordinal> that change on every
// write.
//
// Transactions are carried explicitly in the context.Context (see package
// txn). Provider is the surface consumed by collaborators: WriteBlob returns
// the key and ReadBlob degrades to empty content, logging the failure, when a
// key cannot be read.
package blobtier
