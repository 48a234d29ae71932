package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/events"
	"github.com/vulnzap/vulnzap-client/internal/metrics"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

// ReasonIdleTimeout is reported when a session ends because nothing changed
const ReasonIdleTimeout = "idle_timeout"

// Gateway is the part of the backend gateway a watcher needs
type Gateway interface {
	InitiateIncrementalScan(ctx context.Context, req models.IncrementalScanRequest) (*models.ScanResponse, error)
	StopIncrementalSession(ctx context.Context, sessionID string) (*models.IncrementalResults, error)
}

// SessionStore persists the tracked files of a session
type SessionStore interface {
	GetSession(sessionID string) (*models.SessionState, bool)
	SaveSession(sessionID string, state models.SessionState) error
}

type startParams struct {
	DirPath   string        `validate:"required,dir"`
	SessionID string        `validate:"required"`
	Timeout   time.Duration `validate:"min=10s,max=600s"`
}

// Watcher runs incremental scan sessions over directory trees. Each
// qualifying change is sent to the backend on its own goroutine; a session
// ends after its idle timeout or on Stop.
type Watcher struct {
	gateway  Gateway
	store    SessionStore
	cfg      config.WatcherConfig
	filter   *Filter
	metrics  *metrics.Metrics
	bus      *events.Bus
	validate *validator.Validate
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewWatcher creates a watcher. m may be nil.
func NewWatcher(gateway Gateway, store SessionStore, cfg config.WatcherConfig, m *metrics.Metrics, logger zerolog.Logger) *Watcher {
	return &Watcher{
		gateway:  gateway,
		store:    store,
		cfg:      cfg,
		filter:   NewFilter(cfg),
		metrics:  m,
		bus:      events.NewBus("watcher", logger),
		validate: validator.New(),
		logger:   logger.With().Str("component", "Watcher").Logger(),
		sessions: make(map[string]*session),
	}
}

// Events returns the bus carrying session updates, completions and errors
func (w *Watcher) Events() *events.Bus {
	return w.bus
}

// Start begins observing dirPath for session sessionID. It returns false,
// without observing anything, when the directory does not exist, the timeout
// is outside [10s, 600s], the session is already active or the tree cannot
// be watched.
func (w *Watcher) Start(dirPath, sessionID string, timeout time.Duration) bool {
	params := startParams{DirPath: dirPath, SessionID: sessionID, Timeout: timeout}
	if err := w.validate.Struct(params); err != nil {
		w.logger.Warn().Err(err).
			Str("dir", dirPath).
			Str("session_id", sessionID).
			Dur("timeout", timeout).
			Msg("Refusing to start watch session")
		return false
	}
	return w.startSession(dirPath, sessionID, timeout)
}

func (w *Watcher) startSession(dirPath, sessionID string, timeout time.Duration) bool {
	root, err := filepath.Abs(dirPath)
	if err != nil {
		w.logger.Warn().Err(err).Str("dir", dirPath).Msg("Cannot resolve watch directory")
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, active := w.sessions[sessionID]; active {
		w.logger.Warn().Str("session_id", sessionID).Msg("Watch session already active")
		return false
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to create file watcher")
		return false
	}
	if err := w.addRecursive(fsw, root); err != nil {
		_ = fsw.Close()
		w.logger.Error().Err(err).Str("dir", root).Msg("Failed to watch directory tree")
		return false
	}

	// A persisted state of the same tree is resumed; otherwise the state is
	// created on the first observed change
	state, ok := w.store.GetSession(sessionID)
	if !ok || state.WatchedPath != root {
		state = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:      sessionID,
		root:    root,
		timeout: timeout,
		fsw:     fsw,
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		state:   state,
	}
	w.sessions[sessionID] = s
	w.metrics.SessionStarted()

	go w.loop(s)

	w.logger.Info().
		Str("session_id", sessionID).
		Str("dir", root).
		Dur("timeout", timeout).
		Msg("Watch session started")
	return true
}

// Stop ends observation of sessionID, if active, then asks the backend to
// close the session and returns its final results
func (w *Watcher) Stop(ctx context.Context, sessionID string) (*models.IncrementalResults, error) {
	if s, ok := w.session(sessionID); ok {
		s.requestStop()
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return w.gateway.StopIncrementalSession(ctx, sessionID)
}

// Active reports whether sessionID is currently observing
func (w *Watcher) Active(sessionID string) bool {
	_, ok := w.session(sessionID)
	return ok
}

// Done returns a channel closed when sessionID stops observing. An unknown
// session yields an already closed channel.
func (w *Watcher) Done(sessionID string) <-chan struct{} {
	if s, ok := w.session(sessionID); ok {
		return s.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Close stops every session without contacting the backend
func (w *Watcher) Close() {
	w.mu.Lock()
	active := make([]*session, 0, len(w.sessions))
	for _, s := range w.sessions {
		active = append(active, s)
	}
	w.mu.Unlock()

	for _, s := range active {
		s.requestStop()
		<-s.done
	}
}

func (w *Watcher) session(id string) (*session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sessions[id]
	return s, ok
}

func (w *Watcher) loop(s *session) {
	log := w.logger.With().Str("session_id", s.id).Logger()
	idle := time.NewTimer(s.timeout)
	defer idle.Stop()

	reason := ""
	defer func() { w.teardown(s, reason, log) }()

	for {
		select {
		case <-s.stopCh:
			reason = "stopped"
			return

		case <-idle.C:
			reason = ReasonIdleTimeout
			return

		case event, ok := <-s.fsw.Events:
			if !ok {
				reason = "watcher_closed"
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			rel, err := filepath.Rel(s.root, event.Name)
			if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
				continue
			}
			if w.filter.Excluded(rel) {
				continue
			}

			// Debounce: every qualifying change pushes the idle deadline out
			idle.Reset(s.timeout)

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(s.fsw, event.Name); err != nil {
						log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
					}
					continue
				}
			}

			log.Debug().Str("file", rel).Str("op", event.Op.String()).Msg("File change detected")
			s.handlers.Add(1)
			go w.handleChange(s, event.Name, filepath.ToSlash(rel))

		case err, ok := <-s.fsw.Errors:
			if !ok {
				reason = "watcher_closed"
				return
			}
			log.Error().Err(err).Msg("File watcher error")
			w.publishError(s.id, common.WrapError(err, "file watcher error"), nil)
		}
	}
}

func (w *Watcher) teardown(s *session, reason string, log zerolog.Logger) {
	if err := s.fsw.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close file watcher")
	}
	s.cancel()
	s.handlers.Wait()

	w.mu.Lock()
	delete(w.sessions, s.id)
	w.mu.Unlock()
	w.metrics.SessionStopped()

	log.Info().Str("reason", reason).Msg("Watch session ended")

	if reason == ReasonIdleTimeout {
		w.bus.Publish(models.ClientEvent{
			Type:      models.EventCompleted,
			Source:    models.SourceWatcher,
			SessionID: s.id,
			Data:      map[string]any{"sessionId": s.id, "reason": ReasonIdleTimeout},
			Time:      time.Now(),
		})
	}
	close(s.done)
}

// handleChange reads one changed file and forwards it to the backend
func (w *Watcher) handleChange(s *session, absPath, relPath string) {
	defer s.handlers.Done()
	log := w.logger.With().Str("session_id", s.id).Str("file", relPath).Logger()

	info, err := os.Stat(absPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.publishError(s.id, common.NewIOError("stat", absPath, err), map[string]any{"filePath": relPath})
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if w.cfg.MaxFileSizeBytes > 0 && info.Size() > w.cfg.MaxFileSizeBytes {
		log.Warn().Int64("size", info.Size()).Msg("Skipping file larger than the size limit")
		return
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.publishError(s.id, common.NewIOError("read", absPath, err), map[string]any{"filePath": relPath})
		}
		return
	}

	if snapshot, created := s.ensureState(time.Now().UTC()); created {
		if err := w.store.SaveSession(s.id, snapshot); err != nil {
			log.Warn().Err(err).Msg("Failed to persist session state")
		}
	}

	changeType := s.classify(relPath)
	_, err = w.gateway.InitiateIncrementalScan(s.ctx, models.IncrementalScanRequest{
		SessionID:  s.id,
		FilePath:   relPath,
		Content:    string(content),
		ChangeType: changeType,
		Changed:    true,
	})
	w.metrics.WatcherChange(string(changeType), err)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("Incremental scan request failed")
		w.publishError(s.id, err, map[string]any{"filePath": relPath, "changeType": string(changeType)})
		return
	}

	snapshot, added := s.track(relPath)
	if added {
		if err := w.store.SaveSession(s.id, snapshot); err != nil {
			log.Warn().Err(err).Msg("Failed to persist session state")
		}
	}

	w.bus.Publish(models.ClientEvent{
		Type:      models.EventUpdate,
		Source:    models.SourceWatcher,
		SessionID: s.id,
		Data: map[string]any{
			"sessionId":  s.id,
			"filePath":   relPath,
			"changeType": string(changeType),
		},
		Time: time.Now(),
	})
}

// addRecursive watches root and every non-excluded directory below it
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.filter.ExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) publishError(sessionID string, err error, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["sessionId"] = sessionID
	evt := models.NewErrorEvent(models.SourceWatcher, err, data)
	evt.SessionID = sessionID
	w.bus.Publish(evt)
}
