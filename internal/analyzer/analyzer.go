// Package analyzer implements the scoring sweep (spec §4.4): the single
// cooperative worker that waits for new logs, expires old ones, and
// periodically scores every tracked user and IP, emitting AlertItems
// through internal/audit into the Store's alert queue.
package analyzer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/streamguard/streamguard/internal/audit"
	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/observability"
	"github.com/streamguard/streamguard/internal/scoring"
	"github.com/streamguard/streamguard/internal/store"
)

// Thresholds gating whether a user's score is even eligible to alert
// (spec §4.4 "threshold_met"). Distinct from scoring.Thresholds, which
// maps a computed score to a severity.
const (
	ThreshFailedIP  = 5
	ThreshResources = 10
	ThreshIPs       = 3
)

// sweepInterval is the minimum spacing between full evaluation sweeps
// (spec §4.4 step 4). Not configurable — it's a correctness constant, not
// a policy knob like the inter-wakeup sleep.
const sweepInterval = 2 * time.Second

// Analyzer owns the evaluation sweep. One instance runs for the lifetime
// of the pipeline.
type Analyzer struct {
	store      *store.Store
	policy     scoring.Policy
	thresholds scoring.Thresholds
	validator  *audit.AlertValidator
	metrics    *observability.Metrics
	zlog       *zap.Logger

	// wakeInterval is the cooperative sleep after every loop iteration
	// (spec §4.4 step 5); only ctx cancellation ends it early.
	wakeInterval time.Duration

	lastSweep time.Time
}

// New builds an Analyzer. metrics and zlog may be nil.
func New(
	s *store.Store,
	policy scoring.Policy,
	thresholds scoring.Thresholds,
	validator *audit.AlertValidator,
	metrics *observability.Metrics,
	zlog *zap.Logger,
	wakeInterval time.Duration,
) *Analyzer {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	if wakeInterval <= 0 {
		wakeInterval = 500 * time.Millisecond
	}
	return &Analyzer{
		store:        s,
		policy:       policy,
		thresholds:   thresholds,
		validator:    validator,
		metrics:      metrics,
		zlog:         zlog,
		wakeInterval: wakeInterval,
	}
}

// Run is the Analyzer loop described in spec §4.4. It blocks until
// ingestion has finished and the window has drained, or ctx is cancelled.
// Either way it calls Store.SignalAnalyzerDone exactly once before
// returning, so the Alert Sink is never left waiting.
func (a *Analyzer) Run(ctx context.Context) {
	for {
		a.store.Mu.Lock()
		for a.store.LogCountLocked() == 0 && !a.store.IngestionDoneLocked() {
			a.store.NewLog.Wait()
		}

		if a.store.IngestionDoneLocked() && a.store.LogCountLocked() == 0 {
			a.store.Mu.Unlock()
			a.zlog.Info("analyzer: window drained and ingestion done, exiting")
			a.store.SignalAnalyzerDone()
			return
		}

		now := time.Now()
		a.store.ExpireOldLogsLocked(now)

		if now.Sub(a.lastSweep) >= sweepInterval {
			a.sweepLocked(now)
			a.lastSweep = now
		}
		a.store.Mu.Unlock()

		select {
		case <-ctx.Done():
			a.store.SignalAnalyzerDone()
			return
		case <-time.After(a.wakeInterval):
		}
	}
}

// sweepLocked evaluates every tracked user, then every tracked IP,
// removing entities that fell empty and weren't touched since. Caller
// must hold Mu; this takes IPMu nested for the IP pass (lock order
// main → IP, per spec §5).
func (a *Analyzer) sweepLocked(now time.Time) {
	users := a.store.UsersLocked()
	for id, u := range users {
		a.evaluateUserLocked(u, now)
		a.store.RemoveUserIfEmptyLocked(id)
	}
	if a.metrics != nil {
		a.metrics.TrackedUsers.Set(float64(len(users)))
	}

	a.store.IPMu.Lock()
	ips := a.store.IPIndexLocked()
	for addr, ip := range ips {
		a.evaluateIPLocked(addr, ip, now)
		a.store.RemoveIPIfEmptyLocked(addr)
	}
	if a.metrics != nil {
		a.metrics.TrackedIPs.Set(float64(len(ips)))
	}
	a.store.IPMu.Unlock()
}

// evaluateUserLocked implements the per-user evaluation policy (spec
// §4.4). Caller must hold Mu (and, transitively, is mid-sweep — IPMu is
// not held here, matching "representative IP" being read from the user's
// own multiset, not the IP index).
func (a *Analyzer) evaluateUserLocked(u *model.EntityStats, now time.Time) {
	view := scoring.ViewOfUser(u)
	score := a.policy.UserScore(view)
	u.CurrentScore = score

	if a.metrics != nil {
		a.metrics.EvaluationsTotal.WithLabelValues("user").Inc()
		a.metrics.ScoreHistogram.Observe(score)
	}

	a.zlog.Info("analyzer: user evaluated",
		zap.Int64("user_id", u.UserID),
		zap.Float64("score", score),
		zap.Int("failed_attempts", u.FailedAttempts),
		zap.Int("resource_count", u.ResourceCount()),
		zap.Int("ip_count", u.IPCount()))

	thresholdMet := u.FailedAttempts >= ThreshFailedIP ||
		u.ResourceCount() >= ThreshResources ||
		u.IPCount() >= ThreshIPs
	if !thresholdMet {
		return
	}

	severity := scoring.ScoreToSeverity(score, a.thresholds)
	if severity < model.SeveritySuspicious || score == u.LastAlertScore {
		return
	}

	item := model.AlertItem{
		UserID:    u.UserID,
		IPAddress: u.RepresentativeIP(),
		Score:     score,
		Severity:  severity,
		Timestamp: now,
	}
	if err := a.validator.Validate(&item); err != nil {
		a.zlog.Warn("analyzer: alert rejected by validator",
			zap.Int64("user_id", u.UserID), zap.Error(err))
		return
	}
	if a.store.PushAlertLocked(item) {
		u.LastAlertScore = score
		u.LastAlertTime = now
		if a.metrics != nil {
			a.metrics.AlertsBySeverityTotal.WithLabelValues(severity.String()).Inc()
		}
	}
}

// evaluateIPLocked implements the per-IP evaluation policy (spec §4.4).
// Caller must hold Mu and IPMu.
func (a *Analyzer) evaluateIPLocked(addr string, ip *model.IPStats, now time.Time) {
	if a.metrics != nil {
		a.metrics.EvaluationsTotal.WithLabelValues("ip").Inc()
	}

	view := scoring.ViewOfIP(ip)
	score := a.policy.IPScore(view)

	a.zlog.Info("analyzer: ip evaluated",
		zap.String("ip", addr),
		zap.Float64("score", score),
		zap.Int("failed_attempts", ip.FailedAttempts))

	if ip.FailedAttempts < ThreshFailedIP {
		return
	}

	severity := scoring.ScoreToSeverity(score, a.thresholds)
	if severity < model.SeveritySuspicious || score == ip.LastAlertScore {
		return
	}

	item := model.AlertItem{
		UserID:    model.NoUser,
		IPAddress: addr,
		Score:     score,
		Severity:  severity,
		Timestamp: now,
	}
	if err := a.validator.Validate(&item); err != nil {
		a.zlog.Warn("analyzer: ip alert rejected by validator",
			zap.String("ip", addr), zap.Error(err))
		return
	}
	if a.store.PushAlertLocked(item) {
		ip.LastAlertScore = score
		ip.LastAlertTime = now
		if a.metrics != nil {
			a.metrics.AlertsBySeverityTotal.WithLabelValues(severity.String()).Inc()
		}
	}
}
