// Package ingestion is the Ingestion adapter (spec §4.3): it parses the
// input event stream and pushes parsed entries into the Store. Per spec
// §1 the log-source reader itself is an external collaborator — Source
// is any io.Reader, so swapping a file for a socket is a one-line change
// at the call site, not a feature this package builds out.
package ingestion

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/observability"
	"github.com/streamguard/streamguard/internal/store"
)

// Adapter reads and parses lines from a Source, pushing each valid entry
// into the Store. One Adapter drains one Source to completion.
type Adapter struct {
	store   *store.Store
	metrics *observability.Metrics
	zlog    *zap.Logger

	// LineDelay artificially paces ingestion (spec §4.3: "a policy knob,
	// not a correctness requirement"). Zero disables it.
	LineDelay time.Duration
}

// New builds an Adapter targeting s. metrics and zlog may be nil.
func New(s *store.Store, metrics *observability.Metrics, zlog *zap.Logger, lineDelay time.Duration) *Adapter {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Adapter{store: s, metrics: metrics, zlog: zlog, LineDelay: lineDelay}
}

// Run reads src line by line, pushing every successfully parsed entry
// into the Store, until src is exhausted or ctx is cancelled. It always
// calls Store.SignalIngestionDone exactly once before returning, so the
// Analyzer is never left waiting on new-log.
func (a *Adapter) Run(ctx context.Context, src io.Reader) error {
	defer a.store.SignalIngestionDone()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var parsed, discarded uint64
	for scanner.Scan() {
		if ctx.Err() != nil {
			a.zlog.Info("ingestion: cancelled", zap.Uint64("parsed", parsed), zap.Uint64("discarded", discarded))
			return ctx.Err()
		}

		line := scanner.Text()
		entry, ok := ParseLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimSpace(line), "#") {
				discarded++
				if a.metrics != nil {
					a.metrics.LogsRejectedTotal.WithLabelValues("parse_error").Inc()
				}
			}
			continue
		}

		a.store.PushLog(entry)
		parsed++

		if a.LineDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.LineDelay):
			}
		}
	}

	if err := scanner.Err(); err != nil {
		a.zlog.Error("ingestion: reader error", zap.Error(err))
		return err
	}

	a.zlog.Info("ingestion: source exhausted", zap.Uint64("parsed", parsed), zap.Uint64("discarded", discarded))
	return nil
}

// ParseLine parses one CSV-like input line (spec §6):
//
//	timestamp, user_id, ip, event_type, resource_id, status_code
//
// Blank lines and lines whose first non-whitespace character is '#' are
// comments, reported via the ok=false, no-op path. Any other line that
// fails to parse is discarded silently, same as a comment from the
// caller's point of view — spec §7 treats both as non-fatal no-ops, only
// distinguishable for metrics by the caller re-checking the raw line.
func ParseLine(line string) (*model.LogEntry, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, false
	}

	fields := strings.Split(trimmed, ",")
	if len(fields) != 6 {
		return nil, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	tsRaw, userRaw, ip, eventRaw, resourceRaw, statusRaw := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

	tsSeconds, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil, false
	}
	userID, err := strconv.ParseInt(userRaw, 10, 64)
	if err != nil {
		return nil, false
	}
	eventType, ok := model.ParseEventType(eventRaw)
	if !ok {
		return nil, false
	}
	status, ok := model.ParseStatusCode(statusRaw)
	if !ok {
		return nil, false
	}

	entry := &model.LogEntry{
		Timestamp:  time.Unix(tsSeconds, 0).UTC(),
		UserID:     userID,
		IPAddress:  truncate(ip, model.MaxIPLen),
		EventType:  eventType,
		ResourceID: truncate(resourceRaw, model.MaxResourceIDLen),
		Status:     status,
	}
	return entry, true
}

// truncate bounds a field to the wire format's fixed-size buffers (spec
// §6), matching the original C implementation's behavior of truncating
// rather than rejecting an over-long field.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
