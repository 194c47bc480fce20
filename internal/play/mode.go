package play

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMediaAddress = errors.New("invalid media address")
	ErrPlaybackFailed      = errors.New("playback failed")
	ErrServiceClosed       = errors.New("player closed")
)

// Status is the state reported on the player's status stream.
type Status int

const (
	Stopped Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Mode selects between direct playback and slow motion.
type Mode struct {
	slow bool
	rate float64
}

// Normal plays at the native rate.
func Normal() Mode { return Mode{rate: 1} }

// SlowMotion plays at rate (values below 1 slow down) with the pitch kept.
func SlowMotion(rate float64) Mode { return Mode{slow: true, rate: rate} }

func (m Mode) IsSlowMotion() bool { return m.slow }

func (m Mode) Rate() float64 {
	if !m.slow {
		return 1
	}
	return m.rate
}

func (m Mode) String() string {
	if m.slow {
		return fmt.Sprintf("slow-motion(%g)", m.rate)
	}
	return "normal"
}
