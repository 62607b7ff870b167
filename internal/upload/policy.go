package upload

import (
	"context"
	"io"
	"time"
)

// Blob is the stable reference returned by a blob store for a stored file.
// A blob missing any of ID, URL or SecureURL is treated as a failed upload.
type Blob struct {
	ID        string
	URL       string
	SecureURL string
	Format    string
	SizeBytes int64
}

// Complete reports whether the store returned every field the submission
// workflow persists.
func (b Blob) Complete() bool {
	return b.ID != "" && b.URL != "" && b.SecureURL != ""
}

// BlobStore abstracts the opaque storage backend for attachments.
type BlobStore interface {
	Store(ctx context.Context, name string, reader io.Reader) (Blob, error)
	Delete(ctx context.Context, blobID string) error
}

// RetryPolicy bounds how upload failures are retried. Delays grow
// geometrically: BaseDelay, BaseDelay*Multiplier, and so on.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns the policy used by the submission dialog:
// three attempts with a 2s base delay, doubling between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
	}
}

// Delay returns the backoff before the given 1-based retry attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}

	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	return time.Duration(delay)
}

// Rules is the validation gate applied to every candidate file before it is
// admitted to the pipeline. AllowedTypes holds lowercase extensions without
// the leading dot.
type Rules struct {
	AllowedTypes map[string]struct{}
	MaxFileSize  int64
	MaxFiles     int
}
