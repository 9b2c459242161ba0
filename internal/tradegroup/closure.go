package tradegroup

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tradehook/internal/alert"
)

// IsClosed reports whether a trade group has been closed out. Group state
// is never stored; it is recomputed from the group's alert sequence each
// time so that replays and out-of-order delivery cannot wedge a group.
func (s *Service) IsClosed(ctx context.Context, userID int64, broker, groupID string) (bool, error) {
	seq, err := s.history.GroupAlerts(ctx, groupID)
	if err != nil {
		return false, err
	}
	if len(seq) == 0 {
		return false, nil
	}
	cfg, err := s.config.Get(ctx, userID, seq[0].Symbol, broker)
	if err != nil {
		cfg = DefaultSymbolConfig
	}
	return isClosedSequence(seq, cfg), nil
}

// GroupStatus returns the recomputed status alongside the sequence it was
// derived from.
func (s *Service) GroupStatus(ctx context.Context, userID int64, broker, groupID string) (Status, []Record, error) {
	seq, err := s.history.GroupAlerts(ctx, groupID)
	if err != nil {
		return "", nil, err
	}
	if len(seq) == 0 {
		return "", nil, fmt.Errorf("trade group %s: no alerts recorded", groupID)
	}
	cfg, err := s.config.Get(ctx, userID, seq[0].Symbol, broker)
	if err != nil {
		cfg = DefaultSymbolConfig
	}
	if isClosedSequence(seq, cfg) {
		return StatusClosed, seq, nil
	}
	return StatusActive, seq, nil
}

func isClosedSequence(seq []Record, cfg SymbolConfig) bool {
	tpCount := cfg.TPCount
	if tpCount < 1 {
		tpCount = DefaultSymbolConfig.TPCount
	}
	slCount := cfg.SLCount
	if slCount < 1 {
		slCount = DefaultSymbolConfig.SLCount
	}

	for _, rec := range seq {
		// A reported size of zero closes the group regardless of how many
		// TP/SL levels are configured.
		if rec.PositionSize != nil && *rec.PositionSize == 0 {
			return true
		}
		if rec.ClosesPosition {
			return true
		}
		if rec.AlertType == alert.TypeExit {
			return true
		}
		if slLevel, ok := stopLossLevel(rec); ok && slLevel >= slCount {
			return true
		}
		if tpLevel := rec.AlertType.TPLevel(); tpLevel > 0 && tpLevel >= tpCount {
			return true
		}
	}
	return false
}

// stopLossLevel extracts the stop-loss level of a record. A plain SL is
// level 1; multi-level stop-outs carry SL2, SL3 and so on.
func stopLossLevel(rec Record) (int, bool) {
	if rec.AlertType != alert.TypeStopLoss {
		return 0, false
	}
	level := strings.ToUpper(rec.Level)
	if rest, ok := strings.CutPrefix(level, "SL"); ok && rest != "" {
		if n, err := strconv.Atoi(rest); err == nil && n > 0 {
			return n, true
		}
	}
	return 1, true
}
