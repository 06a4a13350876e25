// Package queue processes screenshot uploads strictly one at a time. Each
// file is extracted, resolved to an absolute timestamp, and folded into the
// store before the next file is attempted, so rate limits pause the whole
// batch instead of hammering the extraction backend.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/batteryview/batteryview/pkg/extract"
	"github.com/batteryview/batteryview/pkg/gemini"
	"github.com/batteryview/batteryview/pkg/log"
	"github.com/batteryview/batteryview/pkg/store"
	"github.com/batteryview/batteryview/pkg/timestamp"
	"github.com/batteryview/batteryview/pkg/types"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
)

// ErrBusy is returned when Enqueue is called while a batch is in flight.
var ErrBusy = errors.New("an upload batch is already being processed")

// File is one uploaded screenshot.
type File struct {
	Name string
	Data []byte
}

// Queue runs upload batches sequentially against the extraction service.
type Queue struct {
	svc          extract.Service
	store        *store.Store
	notify       func(types.Notice)
	retryBackoff time.Duration
	settleDelay  time.Duration

	mu      sync.Mutex
	running bool
}

// Configured sets up the queue and its flags.
func Configured(svc extract.Service, st *store.Store) *Queue {
	q := &Queue{svc: svc, store: st}
	backoff := lflag.Duration("upload-retry-backoff", time.Minute, "How long to wait before retrying a rate-limited extraction")
	settle := lflag.Duration("upload-settle-delay", 1500*time.Millisecond, "How long to keep the progress bar visible after the last file")

	lflag.Do(func() {
		q.retryBackoff = *backoff
		q.settleDelay = *settle
	})

	return q
}

// New creates a queue with explicit timings, for tests.
func New(svc extract.Service, st *store.Store, retryBackoff, settleDelay time.Duration) *Queue {
	return &Queue{svc: svc, store: st, retryBackoff: retryBackoff, settleDelay: settleDelay}
}

// SetNotifier registers the callback used for user-visible notices.
func (q *Queue) SetNotifier(fn func(types.Notice)) {
	q.notify = fn
}

func (q *Queue) notice(n types.Notice) {
	if q.notify != nil {
		q.notify(n)
	}
}

// Enqueue processes files in order, blocking until the batch finishes or ctx
// is cancelled. Only one batch may run at a time. A rate-limited file is
// retried after the backoff without advancing; any other extraction failure
// skips that file and continues.
func (q *Queue) Enqueue(ctx context.Context, files []File, dateContext time.Time) error {
	if len(files) == 0 {
		return nil
	}

	if err := q.svc.Validate(); err != nil {
		q.notice(types.Notice{
			Severity:    types.SeverityError,
			Title:       "Upload Unavailable",
			Description: err.Error(),
		})
		return fmt.Errorf("extraction service unavailable: %w", err)
	}

	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrBusy
	}
	q.running = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	batchID := uuid.New().String()
	ctx = log.WithAttrs(ctx, slog.String("batchID", batchID))
	l := log.Ctx(ctx)
	l.InfoContext(ctx, "upload batch started", slog.Int("files", len(files)))

	total := len(files)
	q.store.Dispatch(ctx, store.StartLoading{TotalFiles: total})

	var processed, failed int
	for i := 0; i < len(files); {
		if err := ctx.Err(); err != nil {
			q.store.Dispatch(ctx, store.ResetUploadState{})
			return err
		}
		f := files[i]

		payload := extract.NewPayload(f.Name, f.Data)
		reading, err := q.svc.Extract(ctx, payload)
		if gemini.IsRateLimited(err) {
			l.WarnContext(ctx, "extraction rate limited, backing off",
				slog.String("file", f.Name),
				slog.Duration("backoff", q.retryBackoff),
			)
			select {
			case <-ctx.Done():
				q.store.Dispatch(ctx, store.ResetUploadState{})
				return ctx.Err()
			case <-time.After(q.retryBackoff):
			}
			// retry the same file
			continue
		}
		if err != nil {
			failed++
			l.ErrorContext(ctx, "extraction failed", slog.String("file", f.Name), slog.Any("error", err))
			q.notice(types.Notice{
				Severity:    types.SeverityError,
				Title:       "Upload Failed",
				Description: fmt.Sprintf("Could not process %s: %v", f.Name, err),
			})
		} else {
			resolved := timestamp.Resolve(f.Name, dateContext, reading.Timestamp)
			q.store.Dispatch(ctx, store.AddDataPoint{
				BatteryID: reading.BatteryID,
				Point:     types.RawDataPoint{Reading: reading, Timestamp: resolved},
			})
			processed++
		}
		i++
		q.store.Dispatch(ctx, store.UpdateUploadProgress{Processed: processed + failed, Total: total})
	}

	// let the finished progress bar linger before resetting
	select {
	case <-ctx.Done():
	case <-time.After(q.settleDelay):
	}
	q.store.Dispatch(ctx, store.ResetUploadState{})

	l.InfoContext(ctx, "upload batch finished", slog.Int("processed", processed), slog.Int("failed", failed))
	q.notice(types.Notice{
		Severity:    types.SeverityInfo,
		Title:       "Upload Complete",
		Description: fmt.Sprintf("Processed %d of %d files (%d failed).", processed, total, failed),
	})
	return nil
}
