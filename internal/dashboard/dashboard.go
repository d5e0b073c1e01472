// Package dashboard renders alert blocks and the end-of-run summary
// (spec §6). Per spec §1 the terminal renderer and its colour/formatting
// concerns are an external collaborator's job — Renderer is the boundary
// contract, and PlainRenderer is the one default, uncoloured
// implementation this package builds out (SPEC_FULL.md §6).
package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/store"
)

// Renderer turns pipeline output into human-readable text. Swapping in a
// coloured or TUI renderer is a one-interface implementation, not a
// change to the pipeline.
type Renderer interface {
	RenderAlert(item model.AlertItem) string
	RenderSummary(s Summary) string
}

// UserScore is one row of the summary's top-users table.
type UserScore struct {
	UserID int64
	Score  float64
}

// Summary is the end-of-run dashboard content (spec §6: "a final
// dashboard summarizing total logs, total alerts, active entity count,
// and the top five users by current score").
type Summary struct {
	TotalLogsIngested  uint64
	TotalLogsExpired   uint64
	TotalAlertsEmitted uint64
	TotalAlertsDropped uint64
	ActiveUsers        int
	ActiveIPs          int
	TopUsers           []UserScore
}

// BuildSummary snapshots s under its main lock and ranks tracked users by
// current score, keeping at most topN.
func BuildSummary(s *store.Store, topN int) Summary {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	totals := s.TotalsLocked()
	users := s.UsersLocked()

	scores := make([]UserScore, 0, len(users))
	for id, u := range users {
		scores = append(scores, UserScore{UserID: id, Score: u.CurrentScore})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].UserID < scores[j].UserID
	})
	if len(scores) > topN {
		scores = scores[:topN]
	}

	return Summary{
		TotalLogsIngested:  totals.LogsIngested,
		TotalLogsExpired:   totals.LogsExpired,
		TotalAlertsEmitted: totals.AlertsEmitted,
		TotalAlertsDropped: totals.AlertsDropped,
		ActiveUsers:        totals.ActiveUsers,
		ActiveIPs:          totals.ActiveIPs,
		TopUsers:           scores,
	}
}

// PlainRenderer is the uncoloured, plain-text Renderer (SPEC_FULL.md §6).
type PlainRenderer struct{}

const frameWidth = 50

// RenderAlert renders one alert as a framed block. No colour — severity
// is conveyed by name only.
func (PlainRenderer) RenderAlert(item model.AlertItem) string {
	var subject string
	if item.IsIPLevel() {
		subject = fmt.Sprintf("ip=%s", item.IPAddress)
	} else {
		subject = fmt.Sprintf("user=%d ip=%s", item.UserID, item.IPAddress)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "+%s+\n", strings.Repeat("-", frameWidth))
	fmt.Fprintf(&b, "| ALERT  severity=%-10s score=%-8.2f |\n", item.Severity.String(), item.Score)
	fmt.Fprintf(&b, "| %-47s |\n", subject)
	fmt.Fprintf(&b, "| time=%-41s |\n", item.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "+%s+\n", strings.Repeat("-", frameWidth))
	return b.String()
}

// RenderSummary renders the end-of-run dashboard.
func (PlainRenderer) RenderSummary(s Summary) string {
	var b strings.Builder
	b.WriteString("=== streamguard summary ===\n")
	fmt.Fprintf(&b, "logs ingested:   %d\n", s.TotalLogsIngested)
	fmt.Fprintf(&b, "logs expired:    %d\n", s.TotalLogsExpired)
	fmt.Fprintf(&b, "alerts emitted:  %d\n", s.TotalAlertsEmitted)
	fmt.Fprintf(&b, "alerts dropped:  %d\n", s.TotalAlertsDropped)
	fmt.Fprintf(&b, "active users:    %d\n", s.ActiveUsers)
	fmt.Fprintf(&b, "active ips:      %d\n", s.ActiveIPs)
	b.WriteString("top users by score:\n")
	if len(s.TopUsers) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, u := range s.TopUsers {
		fmt.Fprintf(&b, "  %d. user=%d score=%.2f\n", i+1, u.UserID, u.Score)
	}
	return b.String()
}
