// Package pipeline runs the streaming stress-estimation loop.
//
// A [Pipeline] connects an [audio.Source] to the inference worker and the
// recommender through three goroutines:
//
//	producer: Source.Read → Assembler → Queue.Enqueue
//	consumer: Queue.Dequeue → Worker.Process → Handoff.Publish
//	poller:   ticker → Handoff.Take → Aggregator → Selector → sinks
//
// The queue gives back-pressure between capture and inference; the handoff
// lets the poller surface only the most recent prediction on its own cadence.
// The package also provides the single-file [Analyzer] used by the CLI and
// the HTTP API.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/stresslens/internal/inference"
	"github.com/MrWong99/stresslens/internal/observe"
	"github.com/MrWong99/stresslens/pkg/audio"
)

// Defaults for [Config].
const (
	DefaultFrameSize     = 1024
	DefaultPollInterval  = 5 * time.Second
	DefaultShutdownGrace = 5 * time.Second
)

// Config holds the pipeline's runtime parameters.
type Config struct {
	// SampleRate of the capture stream in Hz.
	SampleRate int

	// Window is the duration of one analysis chunk.
	Window time.Duration

	// FrameSize is the number of samples requested per Source.Read.
	FrameSize int

	// QueueCapacity bounds the chunk queue.
	QueueCapacity int

	// PollInterval is the poller's cadence.
	PollInterval time.Duration

	// ShutdownGrace bounds a graceful stop before teardown is forced.
	ShutdownGrace time.Duration

	// DrainOnStop classifies queued chunks on stop instead of discarding
	// them.
	DrainOnStop bool

	// Language is an optional hint stamped on every chunk.
	Language string
}

func (c *Config) applyDefaults() {
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithHandoff shares an existing handoff, e.g. one the HTTP server reads.
func WithHandoff(h *Handoff) Option {
	return func(p *Pipeline) { p.handoff = h }
}

// Pipeline is one run of the streaming loop. It cannot be restarted; build
// a new one after Run returns.
type Pipeline struct {
	cfg     Config
	source  audio.Source
	worker  *inference.Worker
	rec     *Recommender
	metrics *observe.Metrics
	queue   *Queue
	handoff *Handoff
	asm     *audio.Assembler

	mu         sync.Mutex
	stops      int
	stopCh     chan struct{}
	forceCh    chan struct{}
	forceOnce  sync.Once
	captureErr error
	cancelRun  context.CancelFunc
}

// New validates cfg and returns a Pipeline ready to Run.
func New(cfg Config, src audio.Source, w *inference.Worker, rec *Recommender, opts ...Option) (*Pipeline, error) {
	if src == nil || w == nil || rec == nil {
		return nil, errors.New("pipeline: source, worker and recommender are required")
	}
	cfg.applyDefaults()
	asm, err := audio.NewAssembler(audio.AssemblerConfig{
		SampleRate: cfg.SampleRate,
		Window:     cfg.Window,
		Language:   cfg.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p := &Pipeline{
		cfg:     cfg,
		source:  src,
		worker:  w,
		rec:     rec,
		asm:     asm,
		stopCh:  make(chan struct{}),
		forceCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.handoff == nil {
		p.handoff = NewHandoff(p.metrics)
	}
	p.queue = NewQueue(cfg.QueueCapacity, p.metrics)
	return p, nil
}

// Handoff returns the pipeline's result slot.
func (p *Pipeline) Handoff() *Handoff { return p.handoff }

// Queue returns the pipeline's chunk queue.
func (p *Pipeline) Queue() *Queue { return p.queue }

// ChunkSize returns the number of samples per chunk.
func (p *Pipeline) ChunkSize() int { return p.asm.Size() }

// Stop requests a graceful stop: capture ends, the partial window is
// discarded, queued chunks are drained (or discarded, per DrainOnStop) and
// the last prediction is surfaced. A second call forces immediate teardown.
// Stop is safe to call from any goroutine, before or during Run.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	switch p.stops {
	case 1:
		close(p.stopCh)
	case 2:
		close(p.forceCh)
	}
}

func (p *Pipeline) stopping() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *Pipeline) force() {
	p.forceOnce.Do(func() {
		slog.Warn("pipeline: forcing teardown")
		if err := p.source.Stop(); err != nil {
			slog.Warn("pipeline: stop source", "err", err)
		}
		p.mu.Lock()
		cancel := p.cancelRun
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

// Run starts the source and blocks until the pipeline has stopped.
//
// Cancelling ctx is equivalent to calling Stop. Run returns nil after a clean
// stop or when the source reports end of input, the error wrapping
// [stress.ErrInferenceEscalated] when inference gave up, or the
// [*audio.CaptureError] that ended capture.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.source.Start(ctx); err != nil {
		return &audio.CaptureError{Op: "start", Err: err}
	}

	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()
	p.mu.Lock()
	p.cancelRun = cancelRun
	p.mu.Unlock()

	captureCtx, cancelCapture := context.WithCancel(runCtx)
	defer cancelCapture()

	g, gctx := errgroup.WithContext(runCtx)
	consumerDone := make(chan struct{})
	groupDone := make(chan struct{})

	go p.watch(ctx, cancelCapture, groupDone)

	slog.Info("pipeline started",
		"sample_rate", p.cfg.SampleRate,
		"chunk_size", p.asm.Size(),
		"poll_interval", p.cfg.PollInterval)

	g.Go(func() error {
		// Escalation in the consumer also ends capture.
		ctx, stop := context.WithCancel(captureCtx)
		defer stop()
		go func() {
			select {
			case <-gctx.Done():
				stop()
			case <-ctx.Done():
			}
		}()
		p.produce(ctx)
		return nil
	})
	g.Go(func() error {
		defer close(consumerDone)
		return p.worker.Run(gctx, &consumerQueue{Queue: p.queue, discard: p.discarding}, p.handoff)
	})
	g.Go(func() error {
		p.poll(gctx, consumerDone)
		return nil
	})

	err := g.Wait()
	close(groupDone)

	if errors.Is(err, context.Canceled) && p.stopping() {
		err = nil
	}
	if err != nil {
		slog.Error("pipeline failed", "err", err)
		return err
	}

	p.mu.Lock()
	captureErr := p.captureErr
	p.mu.Unlock()
	if captureErr != nil {
		return captureErr
	}
	slog.Info("pipeline stopped")
	return nil
}

// watch turns ctx cancellation into Stop, ends capture on stop, and forces
// teardown after the grace period or a second Stop.
func (p *Pipeline) watch(ctx context.Context, cancelCapture context.CancelFunc, groupDone <-chan struct{}) {
	select {
	case <-ctx.Done():
		p.Stop()
	case <-p.stopCh:
	case <-groupDone:
		return
	}
	slog.Info("pipeline stopping", "grace", p.cfg.ShutdownGrace, "drain", p.cfg.DrainOnStop)
	cancelCapture()

	t := time.NewTimer(p.cfg.ShutdownGrace)
	defer t.Stop()
	select {
	case <-t.C:
		slog.Warn("pipeline: shutdown grace expired")
		p.force()
	case <-p.forceCh:
		p.force()
	case <-groupDone:
	}
}

// produce reads frames until capture ends, then discards the partial window
// and closes the queue.
func (p *Pipeline) produce(ctx context.Context) {
	defer func() {
		if err := p.source.Stop(); err != nil {
			slog.Warn("pipeline: stop source", "err", err)
		}
		if n := p.asm.Discard(); n > 0 {
			slog.Info("discarded partial window", "samples", n)
			p.metrics.SamplesDiscarded.Add(context.Background(), int64(n))
		}
		p.queue.Close()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := p.source.Read(ctx, p.cfg.FrameSize)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, audio.ErrSourceClosed):
			case errors.Is(err, io.EOF):
				slog.Info("capture reached end of input")
			default:
				p.setCaptureErr(err)
			}
			return
		}

		chunk, ok, err := p.asm.Push(frame)
		if err != nil {
			var ae *audio.AssemblyError
			if errors.As(err, &ae) {
				slog.Warn("dropping audio frame", "reason", ae.Reason)
				p.metrics.RecordFrameDropped(ctx, ae.Reason)
				continue
			}
			p.setCaptureErr(err)
			return
		}
		for ok {
			p.metrics.ChunksAssembled.Add(ctx, 1)
			if err := p.queue.Enqueue(ctx, chunk); err != nil {
				return
			}
			chunk, ok = p.asm.Ready()
		}
	}
}

func (p *Pipeline) discarding() bool {
	return !p.cfg.DrainOnStop && p.stopping()
}

// consumerQueue is the worker's view of the queue. Once a stop without drain
// is requested it drops whatever it dequeues, so the consumer stays the only
// reader.
type consumerQueue struct {
	*Queue
	discard func() bool
}

func (c *consumerQueue) Dequeue(timeout time.Duration) (audio.Chunk, bool) {
	chunk, ok := c.Queue.Dequeue(timeout)
	if !ok || !c.discard() {
		return chunk, ok
	}
	n := 1 + c.Flush()
	slog.Info("discarded queued chunks", "chunks", n)
	return audio.Chunk{}, false
}

func (p *Pipeline) setCaptureErr(err error) {
	var ce *audio.CaptureError
	if !errors.As(err, &ce) {
		err = &audio.CaptureError{Op: "read", Err: err}
	}
	slog.Error("capture failed, pipeline idle until stopped", "err", err)
	p.mu.Lock()
	p.captureErr = err
	p.mu.Unlock()
}

func (p *Pipeline) captureFailed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captureErr != nil
}

// poll surfaces the latest prediction every PollInterval. Once the consumer
// is done it surfaces whatever is left and exits, unless capture failed, in
// which case it idles until Stop.
func (p *Pipeline) poll(ctx context.Context, consumerDone <-chan struct{}) {
	t := time.NewTicker(p.cfg.PollInterval)
	defer t.Stop()

	finished := consumerDone
	var stopped <-chan struct{}
	for {
		select {
		case <-t.C:
			p.surface(ctx)
		case <-finished:
			p.surface(context.WithoutCancel(ctx))
			if p.captureFailed() && !p.stopping() {
				finished = nil
				stopped = p.stopCh
				continue
			}
			return
		case <-stopped:
			return
		case <-ctx.Done():
			p.surface(context.WithoutCancel(ctx))
			return
		}
	}
}

func (p *Pipeline) surface(ctx context.Context) {
	pred, ok := p.handoff.Take()
	if !ok {
		return
	}
	if _, err := p.rec.Surface(ctx, pred); err != nil {
		observe.ChunkLogger(ctx, pred.ChunkID, pred.Seq).Error("surface recommendation", "err", err)
	}
}
