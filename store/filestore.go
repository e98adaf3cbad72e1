package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gradeport/go-portal-client/device"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ Store = (*FileStore)(nil)
var _ Watcher = (*FileStore)(nil)

// fileState is the on-disk layout of the durable client storage. One file
// holds every key so Clear can wipe them all in a single atomic write.
type fileState struct {
	Token        string              `json:"token,omitempty"`
	Username     string              `json:"username,omitempty"`
	Role         string              `json:"role,omitempty"`
	SessionID    string              `json:"sessionId,omitempty"`
	Fingerprint  *device.Fingerprint `json:"fingerprint,omitempty"`
	LastActivity time.Time           `json:"lastActivity,omitzero"`
}

// FileStore persists client state to a JSON file with atomic
// temp-and-rename writes. Its Watcher implementation observes the file for
// writes made by other processes sharing the same state path.
type FileStore struct {
	path string

	mu    sync.Mutex
	state fileState
	// observedSessionID tracks the last session identifier this instance
	// wrote or reported, so WatchSessionID only surfaces external writes.
	observedSessionID string
}

// NewFileStore creates a FileStore at path, loading any existing state.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.load(); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] load")
	}
	fs.observedSessionID = fs.state.SessionID
	return fs, nil
}

func (fs *FileStore) SaveHandle(handle *Handle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.state.Token = handle.Token
	fs.state.Username = handle.Username
	fs.state.Role = handle.Role
	fs.state.SessionID = handle.SessionID
	fs.observedSessionID = handle.SessionID
	return fs.persist()
}

func (fs *FileStore) Handle() (*Handle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.state.SessionID == "" && fs.state.Token == "" {
		return nil, HandleNotFoundErr
	}
	return &Handle{
		Token:     fs.state.Token,
		Username:  fs.state.Username,
		Role:      fs.state.Role,
		SessionID: fs.state.SessionID,
	}, nil
}

func (fs *FileStore) SaveFingerprint(fp *device.Fingerprint) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.state.Fingerprint = fp
	return fs.persist()
}

func (fs *FileStore) Fingerprint() (*device.Fingerprint, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.state.Fingerprint, nil
}

func (fs *FileStore) TouchActivity(at time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.state.LastActivity = at
	return fs.persist()
}

func (fs *FileStore) LastActivity() (time.Time, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.state.LastActivity, nil
}

// Clear wipes every stored key in one write.
func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.state = fileState{}
	fs.observedSessionID = ""
	return fs.persist()
}

// WatchSessionID observes the state file for external writes. The parent
// directory is watched rather than the file itself because atomic
// rename-into-place replaces the inode.
func (fs *FileStore) WatchSessionID(ctx context.Context, onChange func(sessionID string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "[WatchSessionID] fsnotify.NewWatcher")
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		return errors.Wrap(err, "[WatchSessionID] watcher.Add")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(fs.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if sessionID, changed := fs.reloadExternal(); changed {
				onChange(sessionID)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug().Err(err).Msg("state file watcher error")
		}
	}
}

// reloadExternal re-reads the state file and reports whether an external
// write changed the session identifier since this instance last saw it.
func (fs *FileStore) reloadExternal() (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	raw, err := os.ReadFile(fs.path)
	if err != nil {
		return "", false
	}
	var next fileState
	if err := json.Unmarshal(raw, &next); err != nil {
		return "", false
	}
	fs.state = next
	if next.SessionID == fs.observedSessionID {
		return "", false
	}
	fs.observedSessionID = next.SessionID
	return next.SessionID, true
}

func (fs *FileStore) load() error {
	raw, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "os.ReadFile")
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &fs.state); err != nil {
		return errors.Wrap(err, "json.Unmarshal")
	}
	return nil
}

// persist writes the full state atomically. Caller must hold fs.mu.
func (fs *FileStore) persist() error {
	raw, err := json.MarshalIndent(fs.state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[persist] json.MarshalIndent")
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "[persist] os.WriteFile")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[persist] os.Rename")
	}
	return nil
}
