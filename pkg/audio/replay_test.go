package audio_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/stresslens/pkg/audio"
)

func TestReplaySource_ReadsInOrderThenEOF(t *testing.T) {
	src := audio.NewReplaySource(ramp(10), 100, false)
	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var total int
	for {
		f, err := src.Read(ctx, 4)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if f.SampleRate != 100 {
			t.Errorf("SampleRate = %d, want 100", f.SampleRate)
		}
		total += len(f.Samples)
	}
	if total != 10 {
		t.Errorf("read %d samples, want 10", total)
	}
}

func TestReplaySource_StopUnblocksRealtimeRead(t *testing.T) {
	src := audio.NewReplaySource(ramp(100000), 100, true)
	errc := make(chan error, 1)
	go func() {
		_, err := src.Read(context.Background(), 100000) // would sleep ~1000s
		errc <- err
	}()
	if err := src.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; !errors.Is(err, audio.ErrSourceClosed) {
		t.Fatalf("err = %v, want ErrSourceClosed", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
