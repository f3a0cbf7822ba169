package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	filePrefix = "tool_call_"
	fileExt    = ".json"

	// FileTimeLayout is the timestamp embedded in record file names.
	FileTimeLayout = "20060102_150405.000"
)

// FileRecorder writes one JSON file per record into Dir.
type FileRecorder struct {
	Dir string

	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewFileRecorder creates a recorder rooted at dir. The directory is
// created on first write.
func NewFileRecorder(dir string, logger *slog.Logger) *FileRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileRecorder{
		Dir:    dir,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// Record writes rec to a new file.
func (r *FileRecorder) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	if rec.Arguments == nil {
		rec.Arguments = map[string]any{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return fmt.Errorf("audit: create directory: %w", err)
	}

	path := filepath.Join(r.Dir, fileName(rec))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("audit: write file: %w", err)
	}

	r.logger.Debug("tool call recorded", "tool", rec.Tool, "call_id", rec.CallID, "path", path)
	return nil
}

// List reads records back, newest first. Unreadable files are skipped.
func (r *FileRecorder) List(ctx context.Context, limit int) ([]Record, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		names = append(names, name)
	}
	// The embedded timestamp sorts lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var records []Record
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		if limit > 0 && len(records) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(r.Dir, name))
		if err != nil {
			r.logger.Warn("skipping unreadable audit file", "file", name, "error", err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			r.logger.Warn("skipping malformed audit file", "file", name, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func fileName(rec Record) string {
	short := rec.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return filePrefix + rec.Timestamp.Format(FileTimeLayout) + "_" + short + fileExt
}

var _ Recorder = (*FileRecorder)(nil)
