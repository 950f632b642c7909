package rom

import (
	"context"
	"time"
)

// Vault is a handle to a remote storage node. Implementations apply their
// own timeouts and retry semantics; callers do not retry.
type Vault interface {
	// Name identifies the node in logs.
	Name() string

	// Upload stores the file at path and returns its content id.
	Upload(ctx context.Context, path string) (string, error)

	// Download fetches the content identified by cid into the file at path,
	// replacing any existing file.
	Download(ctx context.Context, cid string, path string) error

	// PurchaseStorage negotiates a durable storage contract for cid and
	// blocks until the contract is active or has failed.
	PurchaseStorage(ctx context.Context, cid string, tier DurabilityTier) (Purchase, error)

	// Ping reports whether the node is reachable.
	Ping(ctx context.Context) error
}

// Purchase is the outcome of an active storage contract. CID may differ from
// the uploaded content id when the network re-encodes the content.
type Purchase struct {
	CID       string
	ExpiresAt time.Time
}
