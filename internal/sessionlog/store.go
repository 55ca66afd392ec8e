package sessionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	apperrors "redswarm/internal/errors"
	"redswarm/internal/logging"
	"redswarm/internal/observability"
)

const (
	DefaultDir        = "logs"
	DefaultListLimit  = 20
	DefaultCacheSize  = 128
	sessionFilePrefix = "session_"
	sessionFileSuffix = ".json"
)

// Save outcomes reported to metrics.
const (
	SaveSaved   = "saved"
	SaveSkipped = "skipped"
	SaveFailed  = "failed"
)

type cachedSummary struct {
	modTime time.Time
	size    int64
	summary Summary
}

// Store reads and writes session files under logs/YYYY/MM/DD/.
type Store struct {
	baseDir   string
	listLimit int
	cache     *lru.Cache[string, cachedSummary]
	metrics   *observability.MetricsCollector
	logger    logging.Logger
}

type StoreOption func(*Store)

func WithListLimit(limit int) StoreOption {
	return func(s *Store) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

// WithSummaryCache sets how many parsed summaries List keeps across calls.
func WithSummaryCache(size int) StoreOption {
	return func(s *Store) {
		if size <= 0 {
			return
		}
		if cache, err := lru.New[string, cachedSummary](size); err == nil {
			s.cache = cache
		}
	}
}

func WithStoreMetrics(metrics *observability.MetricsCollector) StoreOption {
	return func(s *Store) {
		s.metrics = metrics
	}
}

func WithStoreLogger(logger logging.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logging.OrNop(logger)
	}
}

func NewStore(baseDir string, opts ...StoreOption) *Store {
	if baseDir == "" {
		baseDir = DefaultDir
	}
	if strings.HasPrefix(baseDir, "~/") {
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, baseDir[2:])
	}
	cache, _ := lru.New[string, cachedSummary](DefaultCacheSize)
	s := &Store{
		baseDir:   baseDir,
		listLimit: DefaultListLimit,
		cache:     cache,
		logger:    logging.NewComponentLogger("SessionLogStore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) BaseDir() string {
	return s.baseDir
}

// PathFor returns the file a session is written to. The date directory comes
// from the session start time.
func (s *Store) PathFor(session *Session) string {
	start := session.StartTime.Time
	if start.IsZero() {
		start = time.Now()
	}
	return filepath.Join(s.baseDir, start.Format("2006/01/02"), sessionFilePrefix+session.ID+sessionFileSuffix)
}

// Save writes session and reports whether a file was written. Sessions
// without events are never persisted.
func (s *Store) Save(ctx context.Context, session *Session) (bool, error) {
	if session == nil || len(session.Events) == 0 {
		if session != nil {
			s.logger.Debug("Session %s has no events, skipping save", session.ID)
		}
		s.metrics.RecordSessionSave(ctx, SaveSkipped)
		return false, nil
	}
	if err := validateID(session.ID); err != nil {
		s.metrics.RecordSessionSave(ctx, SaveFailed)
		return false, err
	}

	path := s.PathFor(session)
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		s.metrics.RecordSessionSave(ctx, SaveFailed)
		return false, fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		s.metrics.RecordSessionSave(ctx, SaveFailed)
		s.logger.Error("Failed to save session %s: %v", session.ID, err)
		return false, err
	}
	s.metrics.RecordSessionSave(ctx, SaveSaved)
	s.logger.Debug("Session %s saved with %d events", session.ID, len(session.Events))
	return true, nil
}

// Load reads a session by id from any date directory.
func (s *Store) Load(ctx context.Context, sessionID string) (*Session, error) {
	if err := validateID(sessionID); err != nil {
		return nil, err
	}
	path, err := s.find(ctx, sessionFilePrefix+sessionID+sessionFileSuffix)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperrors.NotFoundError(fmt.Sprintf("session not found: %s", sessionID))
	}
	return s.readSession(path)
}

// List returns summaries of the most recent sessions, newest first. A
// non-positive limit uses the store default.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = s.listLimit
	}
	var summaries []Summary
	err := filepath.WalkDir(s.baseDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == s.baseDir && os.IsNotExist(walkErr) {
				return fs.SkipAll
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !isSessionFile(entry.Name()) {
			return nil
		}
		summary, ok := s.summaryFor(path, entry)
		if ok {
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime.Time)
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *Store) summaryFor(path string, entry fs.DirEntry) (Summary, bool) {
	info, err := entry.Info()
	if err != nil {
		return Summary{}, false
	}
	if cached, ok := s.cache.Get(path); ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.summary, true
	}
	session, err := s.readSession(path)
	if err != nil {
		return Summary{}, false
	}
	summary := summarize(session, path)
	s.cache.Add(path, cachedSummary{modTime: info.ModTime(), size: info.Size(), summary: summary})
	return summary, true
}

func (s *Store) find(ctx context.Context, name string) (string, error) {
	var found string
	err := filepath.WalkDir(s.baseDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == s.baseDir && os.IsNotExist(walkErr) {
				return fs.SkipAll
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.IsDir() && entry.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found, err
}

func (s *Store) readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file %s: %w", path, err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Warn("Failed to decode session file %s: %v. Preview: %s", path, err, previewJSON(data))
		return nil, fmt.Errorf("decode session file %s: %w", path, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("decode session file %s: missing session_id", path)
	}
	for i, event := range session.Events {
		if !event.Type.Valid() {
			return nil, fmt.Errorf("decode session file %s: event %d has unknown type %q", path, i, event.Type)
		}
	}
	return &session, nil
}

func isSessionFile(name string) bool {
	return strings.HasPrefix(name, sessionFilePrefix) && strings.HasSuffix(name, sessionFileSuffix)
}

func validateID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return apperrors.ValidationError("session id is required")
	}
	if strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		return apperrors.ValidationError(fmt.Sprintf("invalid session id: %s", sessionID))
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

func previewJSON(data []byte) string {
	const maxPreview = 512
	preview := strings.TrimSpace(string(data))
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\t", " ")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}
