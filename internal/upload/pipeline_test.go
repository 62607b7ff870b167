package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type storeStub struct {
	mu       sync.Mutex
	failures map[string]int
	partial  map[string]bool
	calls    int
}

func (s *storeStub) Store(ctx context.Context, name string, reader io.Reader) (Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if remaining := s.failures[name]; remaining > 0 {
		s.failures[name] = remaining - 1
		return Blob{}, errors.New("transient storage error")
	}

	if s.partial[name] {
		return Blob{ID: "blob-" + name}, nil
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return Blob{}, err
	}

	return Blob{
		ID:        "blob-" + name,
		URL:       "http://cdn.example.com/" + name,
		SecureURL: "https://cdn.example.com/" + name,
		Format:    "png",
		SizeBytes: int64(len(content)),
	}, nil
}

func (s *storeStub) Delete(ctx context.Context, blobID string) error { return nil }

func testRules() Rules {
	return Rules{
		AllowedTypes: map[string]struct{}{"png": {}, "pdf": {}, "txt": {}},
		MaxFileSize:  1024 * 1024,
		MaxFiles:     10,
	}
}

func newTestPipeline(store BlobStore) *Pipeline {
	p := NewPipeline(store, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}, testRules(), zerolog.Nop())
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestPipelineValidationGate(t *testing.T) {
	p := newTestPipeline(&storeStub{})

	// The gate only inspects name and size, so bare headers are enough here.
	require.ErrorIs(t, p.Add(&multipart.FileHeader{Filename: "notes.exe", Size: 10}), ErrTypeNotAllowed)
	require.ErrorIs(t, p.Add(&multipart.FileHeader{Filename: "big.png", Size: 2 * 1024 * 1024}), ErrFileTooLarge)
	require.ErrorIs(t, p.Add(&multipart.FileHeader{Filename: "bad\x01name.png", Size: 10}), ErrInvalidFileName)
	require.ErrorIs(t, p.Add(&multipart.FileHeader{Filename: "../escape.png", Size: 10}), ErrInvalidFileName)
	require.ErrorIs(t, p.Add(nil), ErrInvalidFileName)

	require.NoError(t, p.Add(buildFileHeader(t, "diagram.png", []byte("image-bytes"))))
	require.ErrorIs(t, p.Add(buildFileHeader(t, "diagram.png", []byte("image-bytes"))), ErrDuplicateFile)
}

func TestPipelineBatchLimit(t *testing.T) {
	p := NewPipeline(&storeStub{}, DefaultRetryPolicy(), Rules{
		AllowedTypes: map[string]struct{}{"txt": {}},
		MaxFiles:     2,
	}, zerolog.Nop())

	require.NoError(t, p.Add(buildFileHeader(t, "a.txt", []byte("a"))))
	require.NoError(t, p.Add(buildFileHeader(t, "b.txt", []byte("b"))))
	require.ErrorIs(t, p.Add(buildFileHeader(t, "c.txt", []byte("c"))), ErrTooManyFiles)
}

func TestPipelineUploadsAndFinalizes(t *testing.T) {
	store := &storeStub{}
	p := newTestPipeline(store)

	require.NoError(t, p.Add(buildFileHeader(t, "report.pdf", []byte("%PDF-1.4 report"))))
	require.NoError(t, p.Add(buildFileHeader(t, "diagram.png", []byte("image-bytes"))))

	p.Run(context.Background())

	attachments, err := p.Finalize()
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	require.Equal(t, "report.pdf", attachments[0].OriginalName, "finalize preserves batch order")
	require.Equal(t, "blob-report.pdf", attachments[0].BlobID)
	require.Equal(t, "https://cdn.example.com/diagram.png", attachments[1].SecureURL)
	require.False(t, attachments[1].UploadedAt.IsZero())
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	store := &storeStub{failures: map[string]int{"flaky.png": 2}}
	p := newTestPipeline(store)

	require.NoError(t, p.Add(buildFileHeader(t, "flaky.png", []byte("image"))))
	p.Run(context.Background())

	statuses := p.Snapshot()
	require.Len(t, statuses, 1)
	require.Equal(t, StateCompleted, statuses[0].State)
	require.Equal(t, 3, statuses[0].Attempts)

	_, err := p.Finalize()
	require.NoError(t, err)
}

func TestPipelineMarksFailedAfterExhaustedRetries(t *testing.T) {
	store := &storeStub{failures: map[string]int{"broken.png": 10}}
	p := newTestPipeline(store)

	require.NoError(t, p.Add(buildFileHeader(t, "broken.png", []byte("image"))))
	require.NoError(t, p.Add(buildFileHeader(t, "fine.png", []byte("image"))))
	p.Run(context.Background())

	states := map[string]string{}
	for _, s := range p.Snapshot() {
		states[s.Name] = s.State
	}
	require.Equal(t, StateFailed, states["broken.png"])
	require.Equal(t, StateCompleted, states["fine.png"])

	_, err := p.Finalize()
	require.ErrorIs(t, err, ErrUploadsIncomplete)

	// Removing the failed file unblocks finalize with the completed rest.
	require.NoError(t, p.Remove("broken.png"))
	attachments, err := p.Finalize()
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	require.Equal(t, "fine.png", attachments[0].OriginalName)
}

func TestPipelineManualRetryAfterFailure(t *testing.T) {
	store := &storeStub{failures: map[string]int{"slow.png": 3}}
	p := newTestPipeline(store)

	require.NoError(t, p.Add(buildFileHeader(t, "slow.png", []byte("image"))))
	p.Run(context.Background())
	require.Equal(t, StateFailed, p.Snapshot()[0].State)

	require.NoError(t, p.Retry("slow.png"))
	require.Equal(t, StatePending, p.Snapshot()[0].State)

	p.Run(context.Background())
	require.Equal(t, StateCompleted, p.Snapshot()[0].State)
}

func TestPipelineTreatsPartialBlobAsFailure(t *testing.T) {
	store := &storeStub{partial: map[string]bool{"half.png": true}}
	p := newTestPipeline(store)

	require.NoError(t, p.Add(buildFileHeader(t, "half.png", []byte("image"))))
	p.Run(context.Background())

	status := p.Snapshot()[0]
	require.Equal(t, StateFailed, status.State)
	require.ErrorIs(t, status.Err, ErrIncompleteBlob)
}

func TestPipelineCancellationStopsRetries(t *testing.T) {
	store := &storeStub{failures: map[string]int{"doomed.png": 10}}
	p := NewPipeline(store, RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 2}, testRules(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Add(buildFileHeader(t, "doomed.png", []byte("image"))))
	p.Run(ctx)

	require.Equal(t, StateFailed, p.Snapshot()[0].State)
	require.LessOrEqual(t, store.calls, 1, "cancellation must not schedule further retries")
}

func TestRetryPolicyDelayDoubles(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2}
	require.Equal(t, 2*time.Second, policy.Delay(1))
	require.Equal(t, 4*time.Second, policy.Delay(2))
	require.Equal(t, 8*time.Second, policy.Delay(3))
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf("form-data; name=%q; filename=%q", "file", filename)},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 10240))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
