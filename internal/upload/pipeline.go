// Package upload drives the multi-file attachment pipeline: it validates
// candidate files, uploads them concurrently to a blob store with bounded
// retry and backoff, and assembles the completed descriptors a submission
// may persist. Every file always reaches a terminal state in finite time.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/Y04ash/Projexx/internal/models"
)

// Per-file states. A failed file returns to pending only through an
// explicit Retry call.
const (
	StatePending   = "pending"
	StateUploading = "uploading"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

var (
	// ErrTypeNotAllowed indicates the file extension is outside the task policy.
	ErrTypeNotAllowed = errors.New("file type not allowed")
	// ErrFileTooLarge indicates the file exceeds the task's attachment limit.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrInvalidFileName indicates the filename failed the sanity check.
	ErrInvalidFileName = errors.New("invalid file name")
	// ErrDuplicateFile indicates a (name, size) duplicate within the batch.
	ErrDuplicateFile = errors.New("duplicate file in batch")
	// ErrTooManyFiles indicates the batch limit was reached.
	ErrTooManyFiles = errors.New("too many files in batch")
	// ErrUploadsIncomplete refuses finalization while files are not all completed.
	ErrUploadsIncomplete = errors.New("uploads not complete")
	// ErrIncompleteBlob indicates the store returned a partial result.
	ErrIncompleteBlob = errors.New("blob store returned incomplete result")
	// ErrFileNotFound indicates a Retry or Remove target is unknown.
	ErrFileNotFound = errors.New("file not in batch")
)

const maxFileNameLength = 255

// FileStatus is a point-in-time snapshot of one file in the batch.
type FileStatus struct {
	Name     string
	State    string
	Attempts int
	Err      error
}

type pipelineFile struct {
	header     *multipart.FileHeader
	name       string
	state      string
	attempts   int
	err        error
	attachment models.Attachment
}

// Pipeline turns a batch of user-selected files into attachment
// descriptors. It is safe for concurrent use.
type Pipeline struct {
	store  BlobStore
	policy RetryPolicy
	rules  Rules
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	files []*pipelineFile
}

// NewPipeline constructs a pipeline for one submission batch.
func NewPipeline(store BlobStore, policy RetryPolicy, rules Rules, logger zerolog.Logger) *Pipeline {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	return &Pipeline{
		store:  store,
		policy: policy,
		rules:  rules,
		logger: logger.With().Str("component", "upload_pipeline").Logger(),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Add validates a candidate file and admits it to the batch in pending
// state. Validation failures reject the file before any upload is attempted.
func (p *Pipeline) Add(file *multipart.FileHeader) error {
	if file == nil {
		return fmt.Errorf("nil file header: %w", ErrInvalidFileName)
	}

	name := strings.TrimSpace(file.Filename)
	if err := validateFileName(name); err != nil {
		return err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if _, ok := p.rules.AllowedTypes[ext]; !ok {
		return fmt.Errorf("extension %q: %w", ext, ErrTypeNotAllowed)
	}

	if p.rules.MaxFileSize > 0 && file.Size > p.rules.MaxFileSize {
		return fmt.Errorf("%d bytes: %w", file.Size, ErrFileTooLarge)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rules.MaxFiles > 0 && len(p.files) >= p.rules.MaxFiles {
		return fmt.Errorf("limit %d: %w", p.rules.MaxFiles, ErrTooManyFiles)
	}

	for _, existing := range p.files {
		if existing.name == name && existing.header.Size == file.Size {
			return fmt.Errorf("%s: %w", name, ErrDuplicateFile)
		}
	}

	p.files = append(p.files, &pipelineFile{
		header: file,
		name:   name,
		state:  StatePending,
	})

	return nil
}

// Run uploads every pending file concurrently and blocks until each one
// reaches a terminal state. Cancelling the context abandons in-flight
// uploads; already stored blobs are left for the external sweep.
func (p *Pipeline) Run(ctx context.Context) {
	p.mu.Lock()
	var pending []*pipelineFile
	for _, f := range p.files {
		if f.state == StatePending {
			pending = append(pending, f)
		}
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, f := range pending {
		wg.Add(1)
		go func(f *pipelineFile) {
			defer wg.Done()
			p.uploadWithRetry(ctx, f)
		}(f)
	}
	wg.Wait()
}

func (p *Pipeline) uploadWithRetry(ctx context.Context, f *pipelineFile) {
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		p.mu.Lock()
		f.state = StateUploading
		f.attempts = attempt
		f.err = nil
		p.mu.Unlock()

		attachment, err := p.uploadOnce(ctx, f)
		if err == nil {
			p.mu.Lock()
			f.attachment = attachment
			p.mu.Unlock()
			p.setState(f, StateCompleted, nil)
			return
		}

		p.logger.Warn().Err(err).Str("file", f.name).Int("attempt", attempt).Msg("attachment upload failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.setState(f, StateFailed, err)
			return
		}

		if attempt < p.policy.MaxAttempts {
			p.setState(f, StatePending, err)
			if sleepErr := p.sleep(ctx, p.policy.Delay(attempt)); sleepErr != nil {
				p.setState(f, StateFailed, err)
				return
			}
			continue
		}

		p.setState(f, StateFailed, err)
	}
}

func (p *Pipeline) uploadOnce(ctx context.Context, f *pipelineFile) (models.Attachment, error) {
	handle, err := f.header.Open()
	if err != nil {
		return models.Attachment{}, fmt.Errorf("open file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, handle); err != nil {
		return models.Attachment{}, fmt.Errorf("read file: %w", err)
	}

	mime := mimetype.Detect(buf.Bytes())

	blob, err := p.store.Store(ctx, f.name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return models.Attachment{}, err
	}

	if !blob.Complete() {
		return models.Attachment{}, ErrIncompleteBlob
	}

	format := blob.Format
	if format == "" {
		format = strings.TrimPrefix(mime.Extension(), ".")
	}

	size := blob.SizeBytes
	if size == 0 {
		size = int64(buf.Len())
	}

	return models.Attachment{
		BlobID:       blob.ID,
		URL:          blob.URL,
		SecureURL:    blob.SecureURL,
		OriginalName: f.name,
		SizeBytes:    size,
		Format:       format,
		UploadedAt:   p.now(),
	}, nil
}

// Retry moves a permanently failed file back to pending so a subsequent Run
// picks it up again.
func (p *Pipeline) Retry(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.files {
		if f.name == name {
			if f.state != StateFailed {
				return fmt.Errorf("file %s is %s, not failed: %w", name, f.state, ErrFileNotFound)
			}
			f.state = StatePending
			f.err = nil
			return nil
		}
	}
	return fmt.Errorf("%s: %w", name, ErrFileNotFound)
}

// Remove drops a file from the batch. Blobs already stored for removed
// files are not cleaned up here; the periodic sweep reclaims them.
func (p *Pipeline) Remove(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, f := range p.files {
		if f.name == name {
			p.files = append(p.files[:i], p.files[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", name, ErrFileNotFound)
}

// Snapshot reports the current per-file state for progress display.
func (p *Pipeline) Snapshot() []FileStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]FileStatus, 0, len(p.files))
	for _, f := range p.files {
		statuses = append(statuses, FileStatus{
			Name:     f.name,
			State:    f.state,
			Attempts: f.attempts,
			Err:      f.err,
		})
	}
	return statuses
}

// Finalize returns the ordered completed descriptors for the batch. It is
// refused while any file is still pending, uploading, or failed; dropping a
// failed file silently is never an option.
func (p *Pipeline) Finalize() ([]models.Attachment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	attachments := make([]models.Attachment, 0, len(p.files))
	for _, f := range p.files {
		if f.state != StateCompleted {
			return nil, fmt.Errorf("file %s is %s: %w", f.name, f.state, ErrUploadsIncomplete)
		}
		attachments = append(attachments, f.attachment)
	}
	return attachments, nil
}

func (p *Pipeline) setState(f *pipelineFile, state string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.state = state
	f.err = err
}

func validateFileName(name string) error {
	if name == "" || len(name) > maxFileNameLength {
		return fmt.Errorf("%q: %w", name, ErrInvalidFileName)
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("control character in %q: %w", name, ErrInvalidFileName)
		}
	}

	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("path separator in %q: %w", name, ErrInvalidFileName)
	}

	return nil
}
