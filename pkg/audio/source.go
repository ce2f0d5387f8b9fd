package audio

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by [Source.Read] after [Source.Stop] was called.
var ErrSourceClosed = errors.New("audio: source closed")

// Source supplies raw audio frames on demand. It abstracts a capture device,
// a network stream, or a replayed recording.
//
// The pipeline calls Start once, then Read repeatedly from a single goroutine.
// Stop may be called from any goroutine at any time and must unblock a
// pending Read, which then returns [ErrSourceClosed]. Stop is idempotent.
type Source interface {
	// Start opens the underlying device or stream.
	Start(ctx context.Context) error

	// Read blocks until a frame of up to frameSize samples is available.
	// Network sources may return shorter frames. The call is bounded by the
	// device's buffering and by ctx.
	Read(ctx context.Context, frameSize int) (Frame, error)

	// Stop releases the device handle. Safe to call more than once.
	Stop() error
}
