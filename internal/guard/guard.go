// Package guard throttles inbound bot traffic per user: a burst draws one
// warning, sustained flooding blocks the user for an escalating duration.
package guard

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"coin-alarm-bot/internal/config"
	"coin-alarm-bot/internal/metrics"
)

// Verdict is the admission outcome for one interaction.
type Verdict int

const (
	Allow Verdict = iota
	AllowWithWarning
	Block
)

func (v Verdict) String() string {
	switch v {
	case AllowWithWarning:
		return "warn"
	case Block:
		return "block"
	default:
		return "allow"
	}
}

// Decision describes what Admit decided. Warn is set when the caller should send
// the one-time spam warning; BlockFor is non-zero only on the interaction that
// triggered a new block.
type Decision struct {
	Verdict  Verdict
	Warn     bool
	BlockFor time.Duration
	Level    int
}

// Forward reports whether the interaction should reach the handlers.
func (d Decision) Forward() bool {
	return d.Verdict != Block
}

type userState struct {
	history      []time.Time
	warned       bool
	blockedUntil time.Time
	level        int
}

// Guard holds per-user admission state. The zero value is not usable; build one
// with New.
type Guard struct {
	cfg    config.GuardConfig
	logger zerolog.Logger

	mu    sync.Mutex
	users map[string]*userState
}

// New creates a guard. Non-positive thresholds fall back to the stock values.
func New(cfg config.GuardConfig, logger zerolog.Logger) *Guard {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 30
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = time.Second
	}
	if cfg.BurstThreshold <= 0 {
		cfg.BurstThreshold = 3
	}
	if cfg.WarnWindow <= 0 {
		cfg.WarnWindow = 2 * time.Second
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = 6
	}
	if cfg.BlockWindow <= 0 {
		cfg.BlockWindow = 10 * time.Second
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = 30
	}
	if len(cfg.Escalation) == 0 {
		cfg.Escalation = []time.Duration{time.Minute, 5 * time.Minute, 20 * time.Minute, time.Hour}
	}

	return &Guard{
		cfg:    cfg,
		logger: logger.With().Str("component", "guard").Logger(),
		users:  make(map[string]*userState),
	}
}

// Admit records an interaction by userID at now and decides whether it passes.
// An empty userID is always allowed.
func (g *Guard) Admit(userID string, now time.Time) Decision {
	if userID == "" {
		metrics.GuardDecisions.WithLabelValues("anonymous").Inc()
		return Decision{Verdict: Allow}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.users[userID]
	if st == nil {
		st = &userState{history: make([]time.Time, 0, g.cfg.HistorySize)}
		g.users[userID] = st
	}

	if now.Before(st.blockedUntil) {
		g.logger.Debug().Str("user_id", userID).Time("blocked_until", st.blockedUntil).Msg("dropping update from blocked user")
		metrics.GuardDecisions.WithLabelValues("dropped").Inc()
		return Decision{Verdict: Block, Level: st.level}
	}

	st.push(now, g.cfg.HistorySize)

	if st.countWithin(now, g.cfg.BurstWindow) < g.cfg.BurstThreshold {
		st.warned = false
		metrics.GuardDecisions.WithLabelValues("allow").Inc()
		return Decision{Verdict: Allow, Level: st.level}
	}

	decision := Decision{Verdict: Allow, Level: st.level}
	if !st.warned && st.countWithin(now, g.cfg.WarnWindow) >= g.cfg.WarnThreshold {
		st.warned = true
		decision.Verdict = AllowWithWarning
		decision.Warn = true
		g.logger.Info().Str("user_id", userID).Msg("warning user for spamming")
	}

	if st.countWithin(now, g.cfg.BlockWindow) >= g.cfg.BlockThreshold {
		idx := st.level
		if idx >= len(g.cfg.Escalation) {
			idx = len(g.cfg.Escalation) - 1
		}
		blockFor := g.cfg.Escalation[idx]
		st.blockedUntil = now.Add(blockFor)
		st.level++
		st.warned = false

		g.logger.Warn().
			Str("user_id", userID).
			Dur("block_for", blockFor).
			Int("level", st.level).
			Msg("user blocked for spamming")
		metrics.GuardDecisions.WithLabelValues("block").Inc()
		decision.Verdict = Block
		decision.BlockFor = blockFor
		decision.Level = st.level
		return decision
	}

	metrics.GuardDecisions.WithLabelValues(decision.Verdict.String()).Inc()
	return decision
}

// BlockedUntil returns the end of the user's current block, if any.
func (g *Guard) BlockedUntil(userID string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st := g.users[userID]; st != nil {
		return st.blockedUntil
	}
	return time.Time{}
}

func (s *userState) push(t time.Time, capacity int) {
	if len(s.history) >= capacity {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, t)
}

// countWithin counts timestamps no older than window, boundary included.
func (s *userState) countWithin(now time.Time, window time.Duration) int {
	n := 0
	for i := len(s.history) - 1; i >= 0; i-- {
		if now.Sub(s.history[i]) > window {
			break
		}
		n++
	}
	return n
}
