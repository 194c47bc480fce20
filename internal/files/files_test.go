package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocations(t *testing.T) *Locations {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Documents")
	return New(root, "zizh")
}

func TestNew_CreatesDirectories(t *testing.T) {
	l := newTestLocations(t)

	for _, dir := range []string{l.HomeDirectory(), l.RecordingsDirectory(), l.TemporaryDirectory()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
	assert.Equal(t, filepath.Join(l.TemporaryDirectory(), "temp.m4a"), l.TemporaryRecordingPath())

	// second construction over the same root is a no-op
	again := New(l.DocumentsRoot(), "zizh")
	assert.Equal(t, l.RecordingsDirectory(), again.RecordingsDirectory())
}

func TestGenerateNewRecordingPath_Format(t *testing.T) {
	l := newTestLocations(t)
	id := uuid.MustParse("6f1c1f5e-8a53-4c1d-9d61-0c7e0e8b4a11")
	l.newID = func() uuid.UUID { return id }
	l.now = func() time.Time { return time.Unix(1738750000, 0) }

	path := l.GenerateNewRecordingPath()

	assert.Equal(t, l.RecordingsDirectory(), filepath.Dir(path))
	assert.Equal(t, "6f1c1f5e-8a53-4c1d-9d61-0c7e0e8b4a11_1738750000_.m4a", filepath.Base(path))
}

func TestExtractRecordingInfo_RoundTrip(t *testing.T) {
	l := newTestLocations(t)

	for i := 0; i < 50; i++ {
		id := uuid.New()
		ts := time.Unix(int64(1600000000+i*86399), 0)
		l.newID = func() uuid.UUID { return id }
		l.now = func() time.Time { return ts }

		info, ok := l.ExtractRecordingInfo(l.GenerateNewRecordingPath())
		require.True(t, ok)
		assert.Equal(t, id, info.ID)
		assert.True(t, ts.Equal(info.Timestamp), "want %v got %v", ts, info.Timestamp)
	}
}

func TestExtractRecordingInfo_FractionalTimestamp(t *testing.T) {
	l := newTestLocations(t)
	id := uuid.New()

	info, ok := l.ExtractRecordingInfo(filepath.Join(l.RecordingsDirectory(), id.String()+"_1738750000.5_.m4a"))

	require.True(t, ok)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, int64(1738750000), info.Timestamp.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(info.Timestamp.Nanosecond()))
}

func TestExtractRecordingInfo_Invalid(t *testing.T) {
	l := newTestLocations(t)
	id := uuid.New().String()

	tests := []struct {
		name string
		file string
	}{
		{"too few components", "invalid_format.m4a"},
		{"no separators", "recording.m4a"},
		{"bad uuid", "not-a-uuid_1738750000_.m4a"},
		{"bad timestamp", id + "_yesterday_.m4a"},
		{"empty timestamp", id + "__.m4a"},
		{"nan timestamp", id + "_NaN_.m4a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := l.ExtractRecordingInfo(filepath.Join(l.RecordingsDirectory(), tt.file))
			assert.False(t, ok)
		})
	}
}

func TestDeleteRecording(t *testing.T) {
	l := newTestLocations(t)
	path := l.GenerateNewRecordingPath()
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))

	l.DeleteRecording(path)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// deleting again only logs
	l.DeleteRecording(path)
}

func TestMoveTemporaryRecording_ExistingFile(t *testing.T) {
	l := newTestLocations(t)
	require.NoError(t, os.WriteFile(l.TemporaryRecordingPath(), []byte("audio"), 0644))

	dst, ok := l.MoveTemporaryRecordingToPersistedLocation(l.TemporaryRecordingPath())

	require.True(t, ok)
	assert.Equal(t, l.RecordingsDirectory(), filepath.Dir(dst))
	_, err := os.Stat(dst)
	assert.NoError(t, err)
	_, err = os.Stat(l.TemporaryRecordingPath())
	assert.True(t, os.IsNotExist(err))
	_, parsed := l.ExtractRecordingInfo(dst)
	assert.True(t, parsed)
}

func TestMoveTemporaryRecording_MissingFile(t *testing.T) {
	l := newTestLocations(t)

	dst, ok := l.MoveTemporaryRecordingToPersistedLocation(l.TemporaryRecordingPath())

	assert.False(t, ok)
	assert.Empty(t, dst)
}

func TestIsRelative(t *testing.T) {
	l := newTestLocations(t)

	assert.False(t, l.IsRelative(l.GenerateNewRecordingPath()))
	assert.True(t, l.IsRelative("zizh/recordings/a.m4a"))
	assert.True(t, l.IsRelative("/tmp/recording1.m4a"))
	assert.False(t, l.IsRelative("/somewhere/else/Documents/zizh/recordings/a.m4a"))
}

func TestMakeRelative(t *testing.T) {
	l := newTestLocations(t)

	rel, err := l.MakeRelative(filepath.Join(l.DocumentsRoot(), "Recordings", "recording1.m4a"))
	require.NoError(t, err)
	assert.Equal(t, "Recordings/recording1.m4a", rel)

	// a root that moved since the path was recorded
	rel, err = l.MakeRelative("/old/install/Documents/zizh/recordings/x.m4a")
	require.NoError(t, err)
	assert.Equal(t, "zizh/recordings/x.m4a", rel)

	// paths outside the documents root are left untouched
	rel, err = l.MakeRelative("/tmp/recording1.m4a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/recording1.m4a", rel)
}

func TestMakeRelative_Idempotent(t *testing.T) {
	l := newTestLocations(t)

	once, err := l.MakeRelative(l.GenerateNewRecordingPath())
	require.NoError(t, err)
	twice, err := l.MakeRelative(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestMakeRelative_Unrepresentable(t *testing.T) {
	l := newTestLocations(t)

	_, err := l.MakeRelative(l.DocumentsRoot())
	assert.ErrorIs(t, err, ErrInvalidFileURL)

	_, err = l.MakeRelative(filepath.Join(l.DocumentsRoot(), "zizh", "bad%zzname.m4a"))
	assert.ErrorIs(t, err, ErrInvalidFileURL)
}

func TestMakeAbsolute(t *testing.T) {
	l := newTestLocations(t)

	assert.Equal(t,
		filepath.Join(l.DocumentsRoot(), "Recordings", "recording1.m4a"),
		l.MakeAbsolute("Recordings/recording1.m4a"))

	abs := filepath.Join(l.DocumentsRoot(), "Recordings", "recording1.m4a")
	assert.Equal(t, abs, l.MakeAbsolute(abs))
}

func TestRelativeAbsoluteRoundTrip(t *testing.T) {
	l := newTestLocations(t)

	paths := []string{
		l.GenerateNewRecordingPath(),
		l.TemporaryRecordingPath(),
		filepath.Join(l.DocumentsRoot(), "a", "b", "c.m4a"),
	}
	for _, p := range paths {
		rel, err := l.MakeRelative(p)
		require.NoError(t, err)
		assert.Equal(t, p, l.MakeAbsolute(rel))
	}
}

func TestScanRecordings(t *testing.T) {
	l := newTestLocations(t)
	good := l.GenerateNewRecordingPath()
	require.NoError(t, os.WriteFile(good, nil, 0644))
	foreign := filepath.Join(l.RecordingsDirectory(), "holiday.m4a")
	require.NoError(t, os.WriteFile(foreign, nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(l.RecordingsDirectory(), "nested"), 0755))

	valid, malformed, err := l.ScanRecordings()

	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, good, valid[0].Path)
	assert.Equal(t, []string{foreign}, malformed)
}
