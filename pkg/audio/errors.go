package audio

import "fmt"

// CaptureError reports that the audio device is unavailable or a read failed.
// It is fatal for the capture goroutine but must not take down the
// recommendation side of the pipeline.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("audio capture: %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// AssemblyError reports a malformed frame. The frame is dropped and the
// pipeline continues.
type AssemblyError struct {
	Reason string
}

func (e *AssemblyError) Error() string {
	return "audio assembly: " + e.Reason
}
