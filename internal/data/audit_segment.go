package data

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"Bulwark/internal/conf"
	"Bulwark/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// Segment file naming: audit-YYYY-MM.jsonl, one file per UTC month.
const (
	segmentPrefix = "audit-"
	segmentSuffix = ".jsonl"
)

// maxEntryBytes bounds a single serialized audit entry when scanning.
const maxEntryBytes = 1 << 20

// SegmentRepo implements biz.AuditSegmentRepo on append-only NDJSON files.
// One serialized entry per line; files never rewritten.
type SegmentRepo struct {
	dir    string
	logger *log.Helper

	mu    sync.Mutex
	file  *os.File
	month string
}

// NewSegmentRepo creates the segment store. Unlike the entity store, the
// audit directory is required: an audit trail that cannot persist must fail
// loudly, not degrade.
func NewSegmentRepo(c *conf.Audit, logger log.Logger) (*SegmentRepo, func(), error) {
	helper := log.NewHelper(logger)

	if c == nil || c.Dir == "" {
		return nil, nil, fmt.Errorf("audit directory is required")
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create audit directory %s: %w", c.Dir, err)
	}

	r := &SegmentRepo{
		dir:    c.Dir,
		logger: helper,
	}

	cleanup := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.file != nil {
			helper.Info("closing audit segment file")
			if err := r.file.Close(); err != nil {
				helper.Errorf("failed to close audit segment: %v", err)
			}
			r.file = nil
		}
	}

	helper.Infow("audit segment store ready", "dir", c.Dir)
	return r, cleanup, nil
}

// Append writes one entry to the segment for the entry's UTC month.
// The line is written in a single O_APPEND write.
func (r *SegmentRepo) Append(ctx context.Context, entry *model.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry %s: %w", entry.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	month := monthOf(entry.Timestamp)
	if r.file == nil || month != r.month {
		if err := r.rotateLocked(month); err != nil {
			return err
		}
	}

	line := append(data, '\n')
	if _, err := r.file.Write(line); err != nil {
		return fmt.Errorf("failed to append audit entry %s: %w", entry.ID, err)
	}

	return nil
}

// LastEntry returns the final entry of the newest segment, or nil when no
// segments exist. Used to seed the hash chain after a restart.
func (r *SegmentRepo) LastEntry(ctx context.Context) (*model.AuditEntry, error) {
	segments, err := r.listSegments()
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}

	newest := segments[len(segments)-1]

	var lastLine []byte
	err = r.scanSegment(ctx, newest, func(line []byte) error {
		lastLine = append(lastLine[:0], line...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(lastLine) == 0 {
		return nil, nil
	}

	var entry model.AuditEntry
	if err := json.Unmarshal(lastLine, &entry); err != nil {
		return nil, fmt.Errorf("corrupt tail entry in %s: %w", newest, err)
	}

	return &entry, nil
}

// Scan replays every entry in chain order (segments sorted by month, lines
// in file order). The callback error aborts the scan and is returned.
func (r *SegmentRepo) Scan(ctx context.Context, fn func(*model.AuditEntry) error) error {
	segments, err := r.listSegments()
	if err != nil {
		return err
	}

	for _, name := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.scanSegment(ctx, name, func(line []byte) error {
			var entry model.AuditEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("corrupt entry in %s: %w", name, err)
			}
			return fn(&entry)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// rotateLocked closes the current handle and opens the segment for month.
// Caller holds r.mu.
func (r *SegmentRepo) rotateLocked(month string) error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			r.logger.Warnw("failed to close previous audit segment", "month", r.month, "error", err)
		}
		r.file = nil
	}

	name := segmentPrefix + month + segmentSuffix
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit segment %s: %w", name, err)
	}

	r.file = f
	r.month = month
	r.logger.Infow("audit segment opened", "segment", name)
	return nil
}

// scanSegment feeds each non-empty line of one segment to fn.
func (r *SegmentRepo) scanSegment(ctx context.Context, name string, fn func(line []byte) error) error {
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		return fmt.Errorf("failed to open audit segment %s: %w", name, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxEntryBytes)

	lines := 0
	for scanner.Scan() {
		lines++
		if lines%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read audit segment %s: %w", name, err)
	}

	return nil
}

// listSegments returns segment file names sorted ascending by month.
func (r *SegmentRepo) listSegments() ([]string, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit directory %s: %w", r.dir, err)
	}

	var segments []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			segments = append(segments, name)
		}
	}

	sort.Strings(segments)
	return segments, nil
}

// monthOf formats the UTC month key used in segment names.
func monthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
