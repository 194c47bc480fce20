package audio

import (
	"context"
	"time"
)

// Take is one capture in progress on the hardware.
type Take interface {
	// Stop asks the hardware to finalize the file. It does not wait.
	Stop()
	// Done yields exactly one value once the file is finalized: nil on
	// success, the failure otherwise.
	Done() <-chan error
}

// Hardware writes microphone input to a file.
type Hardware interface {
	Record(ctx context.Context, path string) (Take, error)
}

// DurationProber reads the playable length of an audio file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}
