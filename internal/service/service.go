package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/marwant/zizh/internal/audio"
	"github.com/marwant/zizh/internal/config"
	"github.com/marwant/zizh/internal/files"
	"github.com/marwant/zizh/internal/metrics"
	"github.com/marwant/zizh/internal/permission"
	"github.com/marwant/zizh/internal/play"
	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/repository"
	"github.com/marwant/zizh/internal/session"
	"github.com/marwant/zizh/internal/store"
	"github.com/marwant/zizh/internal/store/leveldb"
	"github.com/marwant/zizh/internal/store/sqlite"
	"github.com/marwant/zizh/internal/viewmodel"
)

var (
	// ErrRecordingNotFound is returned when no recording matches an id.
	ErrRecordingNotFound = errors.New("recording not found")
	// ErrAmbiguousID is returned when an id prefix matches several recordings.
	ErrAmbiguousID = errors.New("id prefix matches several recordings")
)

// Service wires every component of the recorder together.
type Service struct {
	cfg *config.Config

	Files      *files.Locations
	Repository *repository.Storage
	Arbiter    *session.Arbiter
	Capture    *audio.Capture
	Player     *play.Player
	Metrics    *metrics.Metrics
	ViewModel  *viewmodel.ViewModel

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	hardware   audio.Hardware
	engine     play.Engine
	permission permission.Provider
	prober     audio.DurationProber
	logOutput  bool
}

type Option func(*options)

// WithHardware replaces the ffmpeg capture hardware.
func WithHardware(hw audio.Hardware) Option { return func(o *options) { o.hardware = hw } }

// WithPlaybackEngine replaces the external player process.
func WithPlaybackEngine(e play.Engine) Option { return func(o *options) { o.engine = e } }

func WithPermission(p permission.Provider) Option { return func(o *options) { o.permission = p } }

func WithProber(p audio.DurationProber) Option { return func(o *options) { o.prober = p } }

// WithProcessOutput forwards ffmpeg output to the log.
func WithProcessOutput(enabled bool) Option { return func(o *options) { o.logOutput = enabled } }

// New builds the recorder from cfg. Nothing is started; the caller runs the
// view model loop. On failure everything built so far is released.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	locations := files.New(cfg.Storage.DocumentsRoot, cfg.Storage.HomeDirectory)

	engine, err := openEngine(cfg)
	if err != nil {
		return nil, err
	}

	if o.engine == nil {
		e, err := play.NewCommandEngine(cfg.Playback.Binary)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("failed to set up playback: %w", err)
		}
		o.engine = e
	}
	if o.hardware == nil {
		o.hardware = audio.NewHardware(cfg.Recording, o.logOutput)
	}
	if o.permission == nil {
		o.permission = permission.Sources{Lister: audio.NewPipeWire()}
	}
	if o.prober == nil {
		o.prober = audio.NewProber(cfg.Playback.ProbeBinary)
	}

	arbiter := session.NewArbiter()
	repo := repository.New(engine, locations)
	capture := audio.NewCapture(audio.CaptureOptions{
		Hardware:   o.hardware,
		Files:      locations,
		Permission: o.permission,
		Prober:     o.prober,
		Arbiter:    arbiter,
	})
	player := play.NewPlayer(o.engine, arbiter)
	m := metrics.New()

	vm := viewmodel.New(repo, capture, player,
		viewmodel.WithObserver(m),
		viewmodel.WithRate(cfg.Playback.SlowMotionRate),
	)

	slog.Debug("Service created",
		"home", locations.HomeDirectory(),
		"backend", cfg.Storage.Backend,
		"database", cfg.DatabasePath())

	return &Service{
		cfg:        cfg,
		Files:      locations,
		Repository: repo,
		Arbiter:    arbiter,
		Capture:    capture,
		Player:     player,
		Metrics:    m,
		ViewModel:  vm,
	}, nil
}

func openEngine(cfg *config.Config) (store.Engine, error) {
	backend, err := store.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case store.BackendMemory:
		return store.NewMemory(), nil
	case store.BackendSQLite:
		s, err := sqlite.Open(cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open metadata database: %w", err)
		}
		return s, nil
	default:
		s, err := leveldb.Open(cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open metadata database: %w", err)
		}
		return s, nil
	}
}

func (s *Service) Config() *config.Config { return s.cfg }

// Run runs the view model loop for as long as fn runs and hands fn a context
// tied to the loop. The loop is stopped before Run returns.
func (s *Service) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return s.ViewModel.Run(gctx) })
	g.Go(func() error {
		defer stopLoop()
		select {
		case <-s.ViewModel.Running():
		case <-gctx.Done():
			return gctx.Err()
		}
		return fn(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return nil
	}
	return err
}

// FindRecording resolves a full id or a unique id prefix.
func (s *Service) FindRecording(ctx context.Context, id string) (recording.Recording, error) {
	recs, err := s.Repository.FetchRecords(ctx)
	if err != nil {
		return recording.Recording{}, err
	}
	return matchID(recs, id)
}

func matchID(recs []recording.Recording, id string) (recording.Recording, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return recording.Recording{}, fmt.Errorf("%w: empty id", ErrRecordingNotFound)
	}

	var found []recording.Recording
	for _, r := range recs {
		full := r.ID.String()
		if full == id {
			return r, nil
		}
		if strings.HasPrefix(full, id) {
			found = append(found, r)
		}
	}

	switch len(found) {
	case 0:
		return recording.Recording{}, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	case 1:
		return found[0], nil
	default:
		return recording.Recording{}, fmt.Errorf("%w: %s (%d matches)", ErrAmbiguousID, id, len(found))
	}
}

// ScanReport describes the recordings directory against the metadata.
type ScanReport struct {
	Valid     []files.ScannedFile
	Malformed []string
	// Untracked files carry a valid name but have no metadata.
	Untracked []files.ScannedFile
}

// Scan lists the recordings directory and compares it with the stored
// metadata. Malformed names are never imported.
func (s *Service) Scan(ctx context.Context) (ScanReport, error) {
	valid, malformed, err := s.Files.ScanRecordings()
	if err != nil {
		return ScanReport{}, err
	}
	recs, err := s.Repository.FetchRecords(ctx)
	if err != nil {
		return ScanReport{}, err
	}

	known := make(map[string]bool, len(recs))
	for _, r := range recs {
		known[r.ID.String()] = true
	}

	report := ScanReport{Valid: valid, Malformed: malformed}
	for _, f := range valid {
		if !known[f.Info.ID.String()] {
			report.Untracked = append(report.Untracked, f)
		}
	}
	return report, nil
}

// Import stores metadata for untracked files, probing each duration.
func (s *Service) Import(ctx context.Context, untracked []files.ScannedFile) (int, error) {
	imported := 0
	for _, f := range untracked {
		duration := s.Capture.RecordingDuration(ctx, f.Path)
		rec := recording.FromCapture(f.Info.ID, f.Info.Timestamp, duration, f.Path)
		if err := s.Repository.AddRecording(ctx, rec); err != nil {
			return imported, fmt.Errorf("failed to import %s: %w", f.Path, err)
		}
		slog.Info("Recording imported", "id", rec.ID, "path", f.Path)
		imported++
	}
	return imported, nil
}

// Close stops capture and playback and closes the metadata store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.Capture.Close()
		s.Player.Close()
		s.Arbiter.Close()
		s.closeErr = s.Repository.Close()
	})
	return s.closeErr
}
