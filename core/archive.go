package core

import (
	"context"
	"io"
)

// ArchiveStore keeps generated documents (eg. approved grade sheets).
type ArchiveStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
}
