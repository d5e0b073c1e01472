// Package alertsink is the Alert Sink (spec §4.5): the single consumer of
// the Store's alert queue. It renders every alert, persists critical
// ones to the alert log and the audit ledger, and terminates once the
// Analyzer is done and the queue has drained.
package alertsink

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/streamguard/streamguard/internal/dashboard"
	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/storage"
	"github.com/streamguard/streamguard/internal/store"
)

// criticalLogPath is the default path for the critical-alert text log
// (spec §6).
const criticalLogPath = "alert_log.txt"

// Sink drains the alert queue, renders alerts, and persists the
// critical-severity subset.
type Sink struct {
	store    *store.Store
	db       *storage.DB
	renderer dashboard.Renderer
	zlog     *zap.Logger

	logPath string
	logFile *os.File
}

// New builds a Sink. db may be nil (ledger writes are then skipped
// without logging). renderer defaults to dashboard.PlainRenderer if nil.
func New(s *store.Store, db *storage.DB, renderer dashboard.Renderer, zlog *zap.Logger, logPath string) (*Sink, error) {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	if renderer == nil {
		renderer = dashboard.PlainRenderer{}
	}
	if logPath == "" {
		logPath = criticalLogPath
	}

	// Truncated at process start (spec §6).
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("alertsink.New: open %q: %w", logPath, err)
	}

	return &Sink{
		store:    s,
		db:       db,
		renderer: renderer,
		zlog:     zlog,
		logPath:  logPath,
		logFile:  f,
	}, nil
}

// Close closes the critical-alert log file.
func (sk *Sink) Close() error {
	return sk.logFile.Close()
}

// Run drains the alert queue until the Analyzer is done and the queue is
// empty, or ctx is cancelled.
func (sk *Sink) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			sk.zlog.Info("alertsink: cancelled")
			return
		}

		batch, done := sk.store.PopAlertsBatchBlocking()
		for _, item := range batch {
			sk.handle(item)
		}
		if done {
			sk.zlog.Info("alertsink: analyzer done and queue drained, exiting")
			return
		}
	}
}

// handle renders one alert and, if it's critical, persists it to the
// alert log and the audit ledger. Rendering and file I/O happen outside
// any Store lock (spec §4.5).
func (sk *Sink) handle(item model.AlertItem) {
	fmt.Println(sk.renderer.RenderAlert(item))

	if item.Severity < model.SeverityCritical {
		return
	}

	if _, err := sk.logFile.WriteString(formatCriticalLine(item) + "\n"); err != nil {
		// spec §7: I/O errors on the critical-alert file are reported to
		// stderr; the alert has already been delivered to the console.
		fmt.Fprintf(os.Stderr, "alertsink: failed to write critical alert log: %v\n", err)
	}

	if sk.db == nil {
		return
	}
	entry := storage.LedgerEntry{
		Timestamp:    item.Timestamp,
		UserID:       item.UserID,
		IPAddress:    item.IPAddress,
		Score:        item.Score,
		Severity:     uint8(item.Severity),
		DecisionHash: item.DecisionHash,
		ParentHash:   item.ParentHash,
	}
	if err := sk.db.AppendAlert(entry); err != nil {
		sk.zlog.Error("alertsink: ledger write failed", zap.Error(err))
	}
}

// formatCriticalLine renders the exact critical-alert log line format
// from spec §6: "[YYYY-MM-DD HH:MM:SS] User: <id> | IP: <ip> | Score: <n>
// | Severity: <name>", with the User field omitted for IP-level alerts.
func formatCriticalLine(item model.AlertItem) string {
	ts := item.Timestamp.Format("2006-01-02 15:04:05")
	if item.IsIPLevel() {
		return fmt.Sprintf("[%s] IP: %s | Score: %.2f | Severity: %s",
			ts, item.IPAddress, item.Score, item.Severity.String())
	}
	return fmt.Sprintf("[%s] User: %d | IP: %s | Score: %.2f | Severity: %s",
		ts, item.UserID, item.IPAddress, item.Score, item.Severity.String())
}
