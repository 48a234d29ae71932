package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

// session is the runtime of one watch session
type session struct {
	id      string
	root    string
	timeout time.Duration
	fsw     *fsnotify.Watcher

	// ctx bounds the incremental requests of the session
	ctx    context.Context
	cancel context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	handlers sync.WaitGroup

	// state is nil until the first observed change
	stateMu sync.Mutex
	state   *models.SessionState
}

func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ensureState creates the session state if it does not exist yet. created
// reports whether this call made it; the snapshot is then worth persisting.
func (s *session) ensureState(now time.Time) (snapshot models.SessionState, created bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != nil {
		return models.SessionState{}, false
	}
	s.state = models.NewSessionState(s.id, s.root, now)
	return s.snapshotLocked(), true
}

// classify returns new for paths not yet tracked, modified otherwise
func (s *session) classify(relPath string) models.ChangeType {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != nil && s.state.IsTracked(relPath) {
		return models.ChangeTypeModified
	}
	return models.ChangeTypeNew
}

// track records relPath and returns a snapshot of the state to persist
func (s *session) track(relPath string) (models.SessionState, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == nil {
		s.state = models.NewSessionState(s.id, s.root, time.Now().UTC())
	}
	added := s.state.Track(relPath)
	return s.snapshotLocked(), added
}

func (s *session) snapshotLocked() models.SessionState {
	snapshot := *s.state
	snapshot.TrackedFiles = append([]string(nil), s.state.TrackedFiles...)
	return snapshot
}
