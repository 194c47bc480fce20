// Package files owns the on-disk layout of recordings: where the durable and
// scratch files live, how a recording's identity is encoded into its filename,
// and how paths are translated between the documents-relative form kept in
// metadata and the absolute form needed for I/O.
package files

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RecordingsDirName = "recordings"
	TempDirName       = "temp"
	TempFileName      = "temp.m4a"
	Extension         = ".m4a"

	nameSeparator = "_"
)

// ErrInvalidFileURL is returned when a path cannot be represented as a
// documents-relative URL.
var ErrInvalidFileURL = errors.New("invalid file url")

// Info is the identity recovered from a durable recording filename.
type Info struct {
	ID        uuid.UUID
	Timestamp time.Time
}

// ScannedFile is a durable file whose name carries a valid identity.
type ScannedFile struct {
	Path string
	Info Info
}

// Locations computes every filesystem location used by the recorder.
type Locations struct {
	documentsRoot string
	marker        string
	home          string
	recordings    string
	temp          string
	tempFile      string

	now   func() time.Time
	newID func() uuid.UUID
}

// New derives the layout below documentsRoot/homeName and creates the
// directories that are missing. Creation failures are logged, not returned.
func New(documentsRoot, homeName string) *Locations {
	root := filepath.Clean(documentsRoot)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	home := filepath.Join(root, homeName)
	l := &Locations{
		documentsRoot: root,
		marker:        filepath.Base(root),
		home:          home,
		recordings:    filepath.Join(home, RecordingsDirName),
		temp:          filepath.Join(home, TempDirName),
		tempFile:      filepath.Join(home, TempDirName, TempFileName),
		now:           time.Now,
		newID:         uuid.New,
	}
	l.EnsureDirectories()
	return l
}

func (l *Locations) DocumentsRoot() string          { return l.documentsRoot }
func (l *Locations) HomeDirectory() string          { return l.home }
func (l *Locations) RecordingsDirectory() string    { return l.recordings }
func (l *Locations) TemporaryDirectory() string     { return l.temp }
func (l *Locations) TemporaryRecordingPath() string { return l.tempFile }

// EnsureDirectories creates the home, recordings and temp directories if they
// do not exist yet. It is safe to call repeatedly.
func (l *Locations) EnsureDirectories() {
	for _, dir := range []string{l.home, l.recordings, l.temp} {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create directory", "directory", dir, "error", err)
			continue
		}
		slog.Debug("Directory created", "directory", dir)
	}
}

// RecordingFileName encodes id and creation time as {uuid}_{unixSeconds}_.m4a.
func RecordingFileName(id uuid.UUID, createdAt time.Time) string {
	return id.String() + nameSeparator + strconv.FormatInt(createdAt.Unix(), 10) + nameSeparator + Extension
}

// GenerateNewRecordingPath returns a fresh durable path for a recording
// created now.
func (l *Locations) GenerateNewRecordingPath() string {
	return filepath.Join(l.recordings, RecordingFileName(l.newID(), l.now()))
}

// ExtractRecordingInfo parses the identity encoded in a durable filename.
// It is the only way id and creation time are recovered from a bare file.
func (l *Locations) ExtractRecordingInfo(path string) (Info, bool) {
	return ParseRecordingFileName(filepath.Base(path))
}

// ParseRecordingFileName parses {uuid}_{timestamp}_... names. The timestamp
// may be integer or fractional seconds since the Unix epoch.
func ParseRecordingFileName(name string) (Info, bool) {
	parts := strings.Split(name, nameSeparator)
	if len(parts) < 3 {
		return Info{}, false
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		return Info{}, false
	}

	seconds, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return Info{}, false
	}

	whole, frac := math.Modf(seconds)
	return Info{
		ID:        id,
		Timestamp: time.Unix(int64(whole), int64(math.Round(frac*1e9))),
	}, true
}

// DeleteRecording removes the file at path. The file may already be gone, so
// failures are only logged.
func (l *Locations) DeleteRecording(path string) {
	if err := os.Remove(path); err != nil {
		slog.Warn("Failed to delete recording file", "path", path, "error", err)
		return
	}
	slog.Debug("Recording file deleted", "path", path)
}

// MoveTemporaryRecordingToPersistedLocation moves src to a newly generated
// durable path and returns it. It reports false when src does not exist or
// the move fails.
func (l *Locations) MoveTemporaryRecordingToPersistedLocation(src string) (string, bool) {
	if _, err := os.Stat(src); err != nil {
		slog.Warn("No recording to move", "path", src, "error", err)
		return "", false
	}

	l.EnsureDirectories()
	dst := l.GenerateNewRecordingPath()
	if err := os.Rename(src, dst); err != nil {
		slog.Error("Failed to move recording to durable location", "from", src, "to", dst, "error", err)
		return "", false
	}

	slog.Debug("Recording moved to durable location", "path", dst)
	return dst, true
}

// IsRelative reports whether path does not contain the documents root marker
// segment.
func (l *Locations) IsRelative(path string) bool {
	return markerIndex(segments(path), l.marker) < 0
}

// MakeRelative strips everything up to and including the documents root.
// Relative paths are returned unchanged.
func (l *Locations) MakeRelative(path string) (string, error) {
	if l.IsRelative(path) {
		return path, nil
	}

	var rel string
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, l.documentsRoot+string(filepath.Separator)) {
		rel = filepath.ToSlash(strings.TrimPrefix(clean, l.documentsRoot+string(filepath.Separator)))
	} else {
		// Rooted under a documents directory that has since moved.
		segs := segments(path)
		rel = strings.Join(segs[markerIndex(segs, l.marker)+1:], "/")
	}

	if rel == "" {
		return "", fmt.Errorf("%w: %s has no path below the documents root", ErrInvalidFileURL, path)
	}
	if _, err := url.Parse(rel); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidFileURL, path, err)
	}
	return rel, nil
}

// MakeAbsolute prepends the current documents root to a relative path.
// Absolute paths are returned unchanged.
func (l *Locations) MakeAbsolute(path string) string {
	if !l.IsRelative(path) {
		return path
	}
	return filepath.Join(l.documentsRoot, filepath.FromSlash(path))
}

// ScanRecordings lists the durable directory, splitting files whose names
// encode a valid identity from those that cannot be represented.
func (l *Locations) ScanRecordings() ([]ScannedFile, []string, error) {
	l.EnsureDirectories()

	entries, err := os.ReadDir(l.recordings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	var valid []ScannedFile
	var malformed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(l.recordings, entry.Name())
		info, ok := ParseRecordingFileName(entry.Name())
		if !ok {
			malformed = append(malformed, path)
			continue
		}
		valid = append(valid, ScannedFile{Path: path, Info: info})
	}

	return valid, malformed, nil
}

func segments(path string) []string {
	return strings.Split(filepath.ToSlash(path), "/")
}

func markerIndex(segs []string, marker string) int {
	for i, s := range segs {
		if s == marker {
			return i
		}
	}
	return -1
}
