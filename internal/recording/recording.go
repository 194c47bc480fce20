package recording

import (
	"time"

	"github.com/google/uuid"
)

// Recording is the metadata of one captured voice memo.
// Address is either relative to the documents root or absolute; persisted
// records always carry the relative form.
type Recording struct {
	ID        uuid.UUID     `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Address   string        `json:"address" yaml:"address"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}

// New creates a recording with a fresh id stamped with the current time.
func New(duration time.Duration, name, address string) Recording {
	return Recording{
		ID:        uuid.New(),
		Name:      name,
		Duration:  duration,
		Address:   address,
		CreatedAt: time.Now(),
	}
}

// FromCapture builds the recording for a freshly captured file whose id and
// creation time were recovered from its filename.
func FromCapture(id uuid.UUID, createdAt time.Time, duration time.Duration, address string) Recording {
	return Recording{
		ID:        id,
		Name:      DisplayName(createdAt),
		Duration:  duration,
		Address:   address,
		CreatedAt: createdAt,
	}
}

// DisplayName renders a creation time the way recordings are labelled in lists.
func DisplayName(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Equal reports whether both recordings carry identical values.
func (r Recording) Equal(o Recording) bool {
	return r.ID == o.ID &&
		r.Name == o.Name &&
		r.Duration == o.Duration &&
		r.Address == o.Address &&
		r.CreatedAt.Equal(o.CreatedAt)
}

// Seconds returns the duration in fractional seconds.
func (r Recording) Seconds() float64 {
	return r.Duration.Seconds()
}
