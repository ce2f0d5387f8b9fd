package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/internal/stress"
)

const (
	defaultFeedBuffer = 16
	feedWriteTimeout  = 5 * time.Second
)

// FeedOption configures a [Feed].
type FeedOption func(*Feed)

// WithFeedBuffer sets how many recommendations may queue per subscriber
// before new ones are dropped for that subscriber.
func WithFeedBuffer(n int) FeedOption {
	return func(f *Feed) {
		if n > 0 {
			f.buffer = n
		}
	}
}

// WithFeedOrigins sets the host patterns allowed to subscribe cross-origin.
func WithFeedOrigins(patterns ...string) FeedOption {
	return func(f *Feed) {
		f.originPatterns = patterns
	}
}

// Feed broadcasts surfaced recommendations to websocket subscribers as JSON
// text messages. It is a pipeline sink and an [http.Handler].
//
// A new subscriber first receives the latest recommendation, if any. A slow
// subscriber never blocks delivery: recommendations that do not fit its
// buffer are dropped for that subscriber only.
type Feed struct {
	buffer         int
	originPatterns []string

	mu     sync.Mutex
	subs   map[chan stress.Recommendation]struct{}
	latest *stress.Recommendation
}

// NewFeed returns an empty Feed.
func NewFeed(opts ...FeedOption) *Feed {
	f := &Feed{
		buffer: defaultFeedBuffer,
		subs:   make(map[chan stress.Recommendation]struct{}),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Deliver implements the pipeline sink interface.
func (f *Feed) Deliver(ctx context.Context, rec stress.Recommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = &rec
	for ch := range f.subs {
		select {
		case ch <- rec:
		default:
			observe.Logger(ctx).Debug("feed: subscriber too slow, dropping recommendation", "id", rec.ID)
		}
	}
	return nil
}

// Latest returns the most recently delivered recommendation.
func (f *Feed) Latest() (stress.Recommendation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return stress.Recommendation{}, false
	}
	return *f.latest, true
}

// Subscribers returns the number of connected subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) subscribe() (chan stress.Recommendation, func()) {
	ch := make(chan stress.Recommendation, f.buffer)
	f.mu.Lock()
	if f.latest != nil {
		ch <- *f.latest
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
}

// ServeHTTP upgrades the request to a websocket and streams recommendations
// until the client disconnects or the request context ends.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: f.originPatterns,
	})
	if err != nil {
		// Accept has already written the error response.
		slog.Debug("feed: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Subscribers only listen; CloseRead handles control frames and cancels
	// ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	ch, unsubscribe := f.subscribe()
	defer unsubscribe()
	slog.Info("feed: subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case rec := <-ch:
			wctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := wsjson.Write(wctx, conn, rec)
			cancel()
			if err != nil {
				slog.Debug("feed: write failed, closing subscriber", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}
