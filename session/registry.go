package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFlushDelay is the coalescing window for snapshot writes.
const DefaultFlushDelay = 500 * time.Millisecond

// record pairs persisted metadata with the in-memory message history.
type record struct {
	meta     Session
	messages []Message
}

// snapshotData is the structure of sessions.json. Message bodies are
// deliberately excluded; history does not survive a restart.
type snapshotData struct {
	Sessions []Session `json:"sessions"`
}

// Registry owns the authoritative session records. All mutations schedule
// a coalesced snapshot write: the first mutation after a quiet period arms
// a single flush timer and later mutations within the window ride it.
type Registry struct {
	dataDir    string
	flushDelay time.Duration

	mu           sync.RWMutex
	sessions     map[string]*record
	flushPending bool

	closeMu sync.Mutex
	closed  bool
}

// NewRegistry creates a Registry backed by dataDir/sessions.json and loads
// any previous snapshot. A corrupt or missing snapshot starts empty.
func NewRegistry(dataDir string) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	r := &Registry{
		dataDir:    dataDir,
		flushDelay: DefaultFlushDelay,
		sessions:   make(map[string]*record),
	}
	r.load()
	return r, nil
}

func (r *Registry) snapshotPath() string {
	return filepath.Join(r.dataDir, "sessions.json")
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.snapshotPath())
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		slog.Warn("failed to read session snapshot, starting empty", "error", err)
		return
	}

	var snap snapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("corrupt session snapshot, starting empty", "error", err)
		return
	}

	for _, meta := range snap.Sessions {
		// Nothing is running right after startup.
		if meta.Status == StatusRunning {
			meta.Status = StatusIdle
		}
		r.sessions[meta.ID] = &record{meta: meta}
	}
	slog.Info("loaded session snapshot", "sessions", len(r.sessions))
}

// Create registers a new session. The working directory is required.
func (r *Registry) Create(name, workDir, model string) (Session, error) {
	if workDir == "" {
		return Session{}, ErrWorkDirRequired
	}

	now := time.Now()
	meta := Session{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Name:         name,
		WorkDir:      workDir,
		Model:        model,
		Status:       StatusIdle,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	r.mu.Lock()
	r.sessions[meta.ID] = &record{meta: meta}
	r.scheduleFlushLocked()
	r.mu.Unlock()

	return meta, nil
}

// Get returns a session's metadata by ID.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// List returns summaries of all sessions, most recently active first.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.sessions))
	for _, rec := range r.sessions {
		out = append(out, Summary{Session: rec.meta, MessageCount: len(rec.messages)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	return out
}

// Update applies a partial update and refreshes the last-active timestamp.
// Returns false if the session is unknown; callers must check.
func (r *Registry) Update(id string, fields UpdateFields) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}

	if fields.Name != nil {
		rec.meta.Name = *fields.Name
	}
	if fields.Model != nil {
		rec.meta.Model = *fields.Model
	}
	if fields.Status != nil {
		rec.meta.Status = *fields.Status
	}
	if fields.ResumeToken != nil {
		rec.meta.ResumeToken = *fields.ResumeToken
	}
	rec.meta.LastActiveAt = time.Now()
	r.scheduleFlushLocked()

	return rec.meta, true
}

// AddUsage accumulates a run's cost and token usage into the session.
// Counters only ever grow; negative deltas are ignored.
func (r *Registry) AddUsage(id string, costUSD float64, inputTokens, outputTokens int) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}

	if costUSD > 0 {
		rec.meta.TotalCostUSD += costUSD
	}
	if inputTokens > 0 {
		rec.meta.InputTokens += inputTokens
	}
	if outputTokens > 0 {
		rec.meta.OutputTokens += outputTokens
	}
	rec.meta.LastActiveAt = time.Now()
	r.scheduleFlushLocked()

	return rec.meta, true
}

// AppendMessage appends to the in-memory history. No-op if the session is
// unknown. History is not persisted.
func (r *Registry) AppendMessage(id string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	rec.messages = append(rec.messages, msg)
	rec.meta.LastActiveAt = time.Now()
	r.scheduleFlushLocked()
}

// History returns a copy of the session's ordered message history.
func (r *Registry) History(id string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(rec.messages))
	copy(out, rec.messages)
	return out
}

// Delete removes a session and schedules persistence. Returns whether
// anything was removed. Callers must cancel any active run first.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.scheduleFlushLocked()
	return true
}

// scheduleFlushLocked arms a single pending flush. Rapid mutations within
// the delay window are captured by the same write. Caller holds r.mu.
func (r *Registry) scheduleFlushLocked() {
	if r.flushPending {
		return
	}
	r.flushPending = true
	time.AfterFunc(r.flushDelay, r.flush)
}

func (r *Registry) flush() {
	r.mu.Lock()
	r.flushPending = false
	data, err := r.marshalLocked()
	r.mu.Unlock()

	if err != nil {
		slog.Error("failed to marshal session snapshot", "error", err)
		return
	}
	if err := os.WriteFile(r.snapshotPath(), data, 0644); err != nil {
		slog.Error("failed to write session snapshot", "error", err)
	}
}

func (r *Registry) marshalLocked() ([]byte, error) {
	snap := snapshotData{Sessions: make([]Session, 0, len(r.sessions))}
	for _, rec := range r.sessions {
		snap.Sessions = append(snap.Sessions, rec.meta)
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		return snap.Sessions[i].CreatedAt.Before(snap.Sessions[j].CreatedAt)
	})
	return json.MarshalIndent(snap, "", "  ")
}

// Close writes a final snapshot synchronously. Safe to call once at shutdown.
func (r *Registry) Close() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.flush()
}
