package swcache

import (
	"context"
	"io"
)

// Cache is a single generation of stored responses keyed by request.
type Cache interface {
	// Name returns generation name.
	Name() string

	// Match returns a copy of stored response or ErrNotFound.
	Match(ctx context.Context, key string) (*Response, error)

	// Put stores a copy of response with a given key.
	Put(ctx context.Context, key string, resp *Response) error

	// Delete removes entry, false is returned if entry was missing.
	Delete(ctx context.Context, key string) (bool, error)

	// Keys returns request keys of stored entries.
	Keys(ctx context.Context) ([]string, error)
}

// Storage is a registry of named cache generations.
type Storage interface {
	// Open returns named generation, generation is created if it does not exist.
	Open(ctx context.Context, name string) (Cache, error)

	// Lookup returns existing generation or ErrGenerationNotFound, generation is never created.
	Lookup(ctx context.Context, name string) (Cache, error)

	// Has checks if named generation exists.
	Has(ctx context.Context, name string) (bool, error)

	// Delete removes named generation with all entries, false is returned if generation was missing.
	Delete(ctx context.Context, name string) (bool, error)

	// Keys returns names of existing generations in order of creation.
	Keys(ctx context.Context) ([]string, error)
}

// Walker calls function for every entry in cache and fails on first error returned by that function.
//
// Count of processed entries is returned.
type Walker interface {
	Walk(func(key string, resp *Response) error) (int, error)
}

// Dumper dumps storage entries in binary format.
type Dumper interface {
	Dump(w io.Writer) (int, error)
}

// Restorer restores storage entries from binary dump.
type Restorer interface {
	Restore(r io.Reader) (int, error)
}
