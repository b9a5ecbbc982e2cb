package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 500 * time.Millisecond

type documentFile struct {
	Documents []domain.KnowledgeDocument `yaml:"documents"`
}

// FileStore serves knowledge documents from a directory of YAML files.
// Watch keeps it in sync with the directory.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu   sync.RWMutex
	docs []domain.KnowledgeDocument
}

// NewFileStore loads every *.yaml / *.yml file in dir.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{dir: dir, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadDir parses the knowledge documents in dir, sorted by file name.
func LoadDir(dir string) ([]domain.KnowledgeDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var docs []domain.KnowledgeDocument
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var f documentFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		for i, d := range f.Documents {
			if d.ID == "" {
				d.ID = fmt.Sprintf("%s-%d", base, i+1)
			}
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Reload re-reads the directory. On error the previous documents stay.
func (s *FileStore) Reload() error {
	docs, err := LoadDir(s.dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs = docs
	s.mu.Unlock()
	return nil
}

// Documents returns a snapshot of the loaded documents.
func (s *FileStore) Documents() []domain.KnowledgeDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.KnowledgeDocument(nil), s.docs...)
}

func (s *FileStore) GetContextForSignal(ctx context.Context, signalType string, keywords []string) (string, error) {
	return Render(Rank(s.Documents(), signalType, keywords, MaxDocuments)), nil
}

// Watch reloads the store when YAML files in the directory change, until ctx
// is cancelled. Bursts of events within the debounce window cause one reload.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isYAML(event.Name) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					if timer == nil {
						timer = time.NewTimer(reloadDebounce)
					} else {
						timer.Reset(reloadDebounce)
					}
					fire = timer.C
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("knowledge watcher error", zap.Error(err))
			case <-fire:
				fire = nil
				if err := s.Reload(); err != nil {
					s.logger.Warn("knowledge reload failed", zap.String("dir", s.dir), zap.Error(err))
					continue
				}
				s.logger.Info("knowledge reloaded", zap.String("dir", s.dir), zap.Int("documents", len(s.Documents())))
			}
		}
	}()
	return nil
}
