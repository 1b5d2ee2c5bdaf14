package store

import "errors"

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")

	// ErrConflict is returned by Transaction.Commit when a concurrent
	// transaction wrote one of the same keys first.
	ErrConflict = errors.New("transaction conflict")

	// ErrUnsupported is returned by quad sets that cannot serve a query,
	// e.g. NearestNeighbor on a backend without similarity search.
	ErrUnsupported = errors.New("operation not supported by this store")

	// ErrInvalidArgument is returned for arguments that should have been
	// rejected at the boundary, such as a non-positive neighbor count.
	ErrInvalidArgument = errors.New("invalid argument")
)
