package swcache

// SentinelError is an error.
type SentinelError string

const (
	// ErrNotFound indicates missing cache entry.
	ErrNotFound = SentinelError("missing cache entry")

	// ErrGenerationNotFound indicates missing cache generation.
	ErrGenerationNotFound = SentinelError("cache generation not found")

	// ErrStorageClosed indicates a cache handle of a deleted generation.
	ErrStorageClosed = SentinelError("cache generation is deleted")

	// ErrNotGET indicates an attempt to store a response for a non-GET request.
	ErrNotGET = SentinelError("only GET requests can be stored")

	// ErrNoResponse indicates that neither network nor cache could provide a response.
	ErrNoResponse = SentinelError("no response")

	// ErrBadStatus indicates a manifest entry answered with unsuccessful status.
	ErrBadStatus = SentinelError("unsuccessful response status")

	// ErrUnknownMessage indicates unsupported control message type.
	ErrUnknownMessage = SentinelError("unknown message type")

	// ErrAlreadyRequested indicates recent manifest update.
	ErrAlreadyRequested = SentinelError("already requested")

	// ErrNoNetwork indicates that network access is not configured.
	ErrNoNetwork = SentinelError("network is unavailable")
)

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}
