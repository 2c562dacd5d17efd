package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowmesh/workflow/engine"
)

// userDoc is the on-disk shape of "<data>/workflows/<userId>.json": a map
// keyed by workflowId so a user's file can, in principle, carry state for
// more than one workflow even though the engine enforces at most one active
// state per user at a time.
type userDoc struct {
	States map[string]*engine.WorkflowState `json:"states"`
}

// FileStore persists WorkflowState as one JSON file per user under dataDir,
// written atomically via temp-file-plus-rename so a crash mid-write never
// leaves a torn file behind.
type FileStore struct {
	dataDir string
	clock   func() time.Time

	mu    sync.Mutex
	cache map[string]*userDoc // userID -> doc, lazily loaded and kept hot
}

// NewFileStore creates a FileStore rooted at dataDir/workflows, creating the
// directory if necessary.
func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "workflows")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &FileStore{dataDir: dir, clock: time.Now, cache: make(map[string]*userDoc)}, nil
}

func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dataDir, userID+".json")
}

func (s *FileStore) load(userID string) (*userDoc, error) {
	if doc, ok := s.cache[userID]; ok {
		return doc, nil
	}
	b, err := os.ReadFile(s.path(userID))
	if os.IsNotExist(err) {
		doc := &userDoc{States: make(map[string]*engine.WorkflowState)}
		s.cache[userID] = doc
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", userID, err)
	}
	var doc userDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", userID, err)
	}
	if doc.States == nil {
		doc.States = make(map[string]*engine.WorkflowState)
	}
	s.cache[userID] = &doc
	return &doc, nil
}

func (s *FileStore) persist(userID string, doc *userDoc) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", userID, err)
	}
	target := s.path(userID)
	tmp, err := os.CreateTemp(s.dataDir, ".tmp-"+userID+"-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	s.cache[userID] = doc
	return nil
}

func (s *FileStore) Create(ctx context.Context, state *engine.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(state.UserID)
	if err != nil {
		return err
	}
	if _, exists := doc.States[state.WorkflowID]; exists {
		return ErrAlreadyActive
	}
	doc.States[state.WorkflowID] = state.Clone()
	return s.persist(state.UserID, doc)
}

func (s *FileStore) Get(ctx context.Context, userID, workflowID string) (*engine.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	st, ok := doc.States[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (s *FileStore) GetActiveForUser(ctx context.Context, userID string) (*engine.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	for _, st := range doc.States {
		return st.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *FileStore) Update(ctx context.Context, state *engine.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(state.UserID)
	if err != nil {
		return err
	}
	state.LastActiveAt = s.clock()
	doc.States[state.WorkflowID] = state.Clone()
	return s.persist(state.UserID, doc)
}

func (s *FileStore) Delete(ctx context.Context, userID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(userID)
	if err != nil {
		return err
	}
	if _, ok := doc.States[workflowID]; !ok {
		return nil
	}
	delete(doc.States, workflowID)
	return s.persist(userID, doc)
}

func (s *FileStore) ListAll(ctx context.Context) ([]*engine.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("store: list data dir: %w", err)
	}
	var out []*engine.WorkflowState
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		userID := entry.Name()[:len(entry.Name())-len(".json")]
		doc, err := s.load(userID)
		if err != nil {
			return nil, err
		}
		for _, st := range doc.States {
			out = append(out, st.Clone())
		}
	}
	return out, nil
}
