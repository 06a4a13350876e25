package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/batteryview/batteryview/pkg/extract"
	"github.com/batteryview/batteryview/pkg/gemini"
	"github.com/batteryview/batteryview/pkg/store"
	"github.com/batteryview/batteryview/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fileNamed(name string) File {
	return File{Name: name, Data: []byte(name)}
}

func payloadFor(name string) interface{} {
	return mock.MatchedBy(func(p extract.Payload) bool { return p.FileName == name })
}

func reading(batteryID, screenTime string, soc float64) types.Reading {
	return types.Reading{BatteryID: batteryID, SOC: soc, Timestamp: screenTime}
}

func newTestQueue(svc extract.Service) (*Queue, *store.Store, *[]types.Notice) {
	st := store.New()
	q := New(svc, st, time.Millisecond, time.Millisecond)
	notices := &[]types.Notice{}
	q.SetNotifier(func(n types.Notice) { *notices = append(*notices, n) })
	return q, st, notices
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	ctxDate := time.Date(2024, 2, 1, 0, 0, 0, 0, time.Local)

	t.Run("processes files and resets", func(t *testing.T) {
		m := new(extract.Mock)
		m.On("Validate").Return(nil)
		m.On("Extract", mock.Anything, payloadFor("a.png")).Return(reading("BAT-1", "10:00", 80), nil)
		m.On("Extract", mock.Anything, payloadFor("b.png")).Return(reading("BAT-1", "10:30", 90), nil)

		q, st, notices := newTestQueue(m)
		require.NoError(t, q.Enqueue(ctx, []File{fileNamed("a.png"), fileNamed("b.png")}, ctxDate))

		state := st.State()
		assert.False(t, state.IsLoading)
		assert.Nil(t, state.UploadProgress)
		require.Len(t, state.RawBatteries["BAT-1"], 2)
		assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.Local), state.RawBatteries["BAT-1"][0].Timestamp)

		require.NotEmpty(t, *notices)
		last := (*notices)[len(*notices)-1]
		assert.Equal(t, types.SeverityInfo, last.Severity)
		assert.Equal(t, "Upload Complete", last.Title)
		m.AssertExpectations(t)
	})

	t.Run("rejects when the service is not ready", func(t *testing.T) {
		m := new(extract.Mock)
		m.On("Validate").Return(gemini.ErrMissingAPIKey)

		q, st, notices := newTestQueue(m)
		err := q.Enqueue(ctx, []File{fileNamed("a.png")}, ctxDate)
		require.Error(t, err)
		assert.ErrorIs(t, err, gemini.ErrMissingAPIKey)

		assert.False(t, st.State().IsLoading)
		require.Len(t, *notices, 1)
		assert.Equal(t, types.SeverityError, (*notices)[0].Severity)
		m.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	})

	t.Run("rate limit retries the same file before advancing", func(t *testing.T) {
		var order []string
		record := func(args mock.Arguments) {
			order = append(order, args.Get(1).(extract.Payload).FileName)
		}
		rateErr := fmt.Errorf("status 429: %w", gemini.ErrRateLimited)

		m := new(extract.Mock)
		m.On("Validate").Return(nil)
		m.On("Extract", mock.Anything, payloadFor("a.png")).Run(record).Return(reading("BAT-1", "10:00", 80), nil).Once()
		m.On("Extract", mock.Anything, payloadFor("b.png")).Run(record).Return(types.Reading{}, rateErr).Once()
		m.On("Extract", mock.Anything, payloadFor("b.png")).Run(record).Return(reading("BAT-1", "10:30", 85), nil).Once()
		m.On("Extract", mock.Anything, payloadFor("c.png")).Run(record).Return(reading("BAT-1", "11:00", 90), nil).Once()

		q, st, _ := newTestQueue(m)
		require.NoError(t, q.Enqueue(ctx, []File{fileNamed("a.png"), fileNamed("b.png"), fileNamed("c.png")}, ctxDate))

		assert.Equal(t, []string{"a.png", "b.png", "b.png", "c.png"}, order)
		assert.Len(t, st.State().RawBatteries["BAT-1"], 3)
		m.AssertExpectations(t)
	})

	t.Run("hard failure skips the file", func(t *testing.T) {
		m := new(extract.Mock)
		m.On("Validate").Return(nil)
		m.On("Extract", mock.Anything, payloadFor("a.png")).Return(types.Reading{}, errors.New("no battery visible"))
		m.On("Extract", mock.Anything, payloadFor("b.png")).Return(reading("BAT-1", "10:30", 85), nil)

		q, st, notices := newTestQueue(m)
		require.NoError(t, q.Enqueue(ctx, []File{fileNamed("a.png"), fileNamed("b.png")}, ctxDate))

		assert.Len(t, st.State().RawBatteries["BAT-1"], 1)

		var sawFailure bool
		for _, n := range *notices {
			if n.Severity == types.SeverityError {
				sawFailure = true
				assert.Contains(t, n.Description, "a.png")
			}
		}
		assert.True(t, sawFailure)
		last := (*notices)[len(*notices)-1]
		assert.Equal(t, "Upload Complete", last.Title)
		assert.Contains(t, last.Description, "1 failed")
	})

	t.Run("first file's battery becomes the selection", func(t *testing.T) {
		m := new(extract.Mock)
		m.On("Validate").Return(nil)
		m.On("Extract", mock.Anything, payloadFor("b1.png")).Return(reading("B1", "10:00", 80), nil)
		m.On("Extract", mock.Anything, payloadFor("b2.png")).Return(reading("B2", "10:05", 70), nil)

		q, st, _ := newTestQueue(m)
		require.NoError(t, q.Enqueue(ctx, []File{fileNamed("b1.png"), fileNamed("b2.png")}, ctxDate))
		assert.Equal(t, "B1", st.State().CurrentBatteryID)
	})

	t.Run("second batch while running is rejected", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{})

		m := new(extract.Mock)
		m.On("Validate").Return(nil)
		m.On("Extract", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(reading("BAT-1", "10:00", 80), nil)

		q, _, _ := newTestQueue(m)
		done := make(chan error, 1)
		go func() {
			done <- q.Enqueue(ctx, []File{fileNamed("a.png")}, ctxDate)
		}()
		<-started

		err := q.Enqueue(ctx, []File{fileNamed("b.png")}, ctxDate)
		assert.ErrorIs(t, err, ErrBusy)

		close(release)
		require.NoError(t, <-done)
	})

	t.Run("cancellation during backoff stops the batch", func(t *testing.T) {
		rateErr := fmt.Errorf("status 429: %w", gemini.ErrRateLimited)
		m := new(extract.Mock)
		m.On("Validate").Return(nil)
		m.On("Extract", mock.Anything, mock.Anything).Return(types.Reading{}, rateErr)

		st := store.New()
		q := New(m, st, time.Hour, time.Millisecond)

		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := q.Enqueue(cctx, []File{fileNamed("a.png")}, ctxDate)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, st.State().IsLoading)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		m := new(extract.Mock)
		q, _, notices := newTestQueue(m)
		require.NoError(t, q.Enqueue(ctx, nil, ctxDate))
		assert.Empty(t, *notices)
		m.AssertNotCalled(t, "Validate")
	})
}
