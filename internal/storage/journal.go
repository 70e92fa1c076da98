package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"go.uber.org/zap"
)

// Journal is the best-effort on-disk flush target for entities the
// store could not persist. Entries append as JSON lines; the file swap
// is atomic so a crash never leaves a torn journal.
type Journal struct {
	logger *logger.Logger
	dir    string
	mutex  sync.Mutex
}

type journalEntry struct {
	Kind   string      `json:"kind"`
	Time   int64       `json:"time"`
	Entity interface{} `json:"entity"`
}

func NewJournal(logger *logger.Logger, dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: journal dir: %w", err)
	}

	return &Journal{logger: logger, dir: dir}, nil
}

// Append writes one entry, rewriting the day's journal atomically.
func (j *Journal) Append(kind string, entity interface{}) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	now := time.Now()
	file := filepath.Join(j.dir, fmt.Sprintf("journal-%s.jsonl", now.Format("2006-01-02")))

	existing, _ := os.ReadFile(file)

	line, err := json.Marshal(&journalEntry{
		Kind:   kind,
		Time:   now.UnixMilli(),
		Entity: entity,
	})
	if err != nil {
		return fmt.Errorf("storage: journal marshal: %w", err)
	}

	tempFile := file + ".tmp"
	content := append(existing, append(line, '\n')...)

	if err := os.WriteFile(tempFile, content, 0644); err != nil {
		return fmt.Errorf("storage: journal write: %w", err)
	}

	if err := os.Rename(tempFile, file); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("storage: journal rename: %w", err)
	}

	j.logger.Warn("[Journal] entity flushed to emergency journal",
		zap.String("kind", kind), zap.String("file", file))
	return nil
}
