package tradegroup

import (
	"context"
	"math"
	"strings"
	"time"

	"tradehook/internal/alert"
	"tradehook/internal/logger"
)

// Service correlates incoming alerts into trade groups using the alert
// history and the per-symbol configuration.
type Service struct {
	history HistoryQuery
	config  SymbolConfigLookup
	now     func() time.Time
}

func NewService(history HistoryQuery, config SymbolConfigLookup) *Service {
	return &Service{
		history: history,
		config:  config,
		now:     time.Now,
	}
}

// intent is what the alert wants to do to a position, as far as that can
// be inferred from the normalized payload.
type intent struct {
	direction string
	isEntry   bool
	isExit    bool
	// direct marks a direction taken from an explicit signal (order_type
	// substring or a flat transition) rather than a weak fallback.
	direct bool
}

func resolveIntent(n *alert.Normalized) intent {
	var it intent

	orderType := strings.ToLower(n.OrderType)
	switch {
	case strings.Contains(orderType, "long"):
		it.direction = "long"
		it.direct = true
	case strings.Contains(orderType, "short"):
		it.direction = "short"
		it.direct = true
	}

	switch {
	case n.AlertType == alert.TypeEntry:
		it.isEntry = true
	case n.AlertType.IsExit():
		it.isExit = true
	}
	if !it.isEntry && !it.isExit {
		switch {
		case strings.HasPrefix(orderType, "enter_") || strings.HasPrefix(orderType, "entry_"):
			it.isEntry = true
		case strings.HasPrefix(orderType, "reduce_") || strings.HasPrefix(orderType, "exit_"):
			it.isExit = true
		}
	}

	// Transitions require an explicit prev/current position pair. An
	// absent field says nothing about the prior state.
	prev := strings.ToLower(n.PrevMarketPosition)
	cur := strings.ToLower(n.MarketPosition)
	switch {
	case prev == "flat" && isDirectional(cur):
		if it.direction == "" {
			it.direction = cur
			it.direct = true
		}
		if !it.isEntry && !it.isExit {
			it.isEntry = true
		}
	case isDirectional(prev) && cur == "flat":
		if it.direction == "" {
			it.direction = prev
			it.direct = true
		}
		if !it.isEntry && !it.isExit {
			it.isExit = true
		}
	case isDirectional(prev) && isDirectional(cur) && prev != cur:
		// Reversal: the alert closes the previous position. The opening
		// leg of the new direction arrives as its own alert.
		it.direction = prev
		it.direct = true
		it.isExit = true
		it.isEntry = false
	}

	if it.direction == "" && isDirectional(cur) {
		it.direction = cur
	}
	if it.direction == "" {
		implicitlyFlat := cur == "" || cur == "flat"
		switch strings.ToLower(n.Action) {
		case "buy":
			it.direction = "long"
			if !it.isEntry && !it.isExit && implicitlyFlat {
				it.isEntry = true
			}
		case "sell":
			it.direction = "short"
			if !it.isEntry && !it.isExit && implicitlyFlat {
				it.isEntry = true
			}
		}
	}
	return it
}

func isDirectional(pos string) bool {
	return pos == "long" || pos == "short"
}

// Determine resolves the trade group for a normalized alert. Entries mint
// a fresh group; exits are matched against active groups in recent
// history. An exit that matches nothing gets a synthesized orphan group
// so the alert is never dropped.
func (s *Service) Determine(ctx context.Context, userID int64, broker string, n *alert.Normalized) (Result, error) {
	it := resolveIntent(n)
	if it.direction == "" {
		logger.Warnf("trade group: no direction for %s alert on %s, leaving ungrouped", n.AlertType, n.Symbol)
		return Result{}, nil
	}

	if it.isEntry || (!it.isExit && n.AlertType == alert.TypeEntry) {
		groupID := NewGroupID(n.Symbol, it.direction, s.now())
		logger.Infof("trade group: new %s group %s", it.direction, groupID)
		return Result{
			GroupID:    groupID,
			Direction:  it.direction,
			IsNewGroup: true,
			EntryPrice: entryPriceOf(n),
		}, nil
	}

	direction := it.direction
	candidates, err := s.activeGroups(ctx, userID, broker, n.Symbol, direction)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 && !it.direct {
		// The direction was only a weak inference; the exit may belong to
		// a position on the other side.
		opposite := oppositeDirection(direction)
		flipped, err := s.activeGroups(ctx, userID, broker, n.Symbol, opposite)
		if err != nil {
			return Result{}, err
		}
		if len(flipped) > 0 {
			logger.Debugf("trade group: no active %s groups for %s, matched %s instead", direction, n.Symbol, opposite)
			direction = opposite
			candidates = flipped
		}
	}

	if len(candidates) == 0 {
		groupID := NewGroupID(n.Symbol, direction, s.now())
		logger.Warnf("trade group: exit alert on %s with no active group, synthesized %s", n.Symbol, groupID)
		return Result{GroupID: groupID, Direction: direction}, nil
	}

	chosen := pickCandidate(candidates, n)
	return Result{
		GroupID:    chosen.groupID,
		Direction:  direction,
		EntryPrice: chosen.entryPrice,
	}, nil
}

type candidate struct {
	groupID    string
	entryPrice *float64
	latestSize *float64
	latestTS   time.Time
}

// activeGroups lists open trade groups for (user, symbol, direction)
// within the lookback window, newest activity first.
func (s *Service) activeGroups(ctx context.Context, userID int64, broker, symbol, direction string) ([]candidate, error) {
	since := s.now().Add(-LookbackWindow)
	recent, err := s.history.RecentAlerts(ctx, userID, symbol, direction, since)
	if err != nil {
		return nil, err
	}

	cfg, err := s.config.Get(ctx, userID, symbol, broker)
	if err != nil {
		logger.Warnf("trade group: symbol config lookup failed for %s, using defaults: %v", symbol, err)
		cfg = DefaultSymbolConfig
	}

	seen := make(map[string]bool)
	var out []candidate
	for _, rec := range recent {
		if rec.GroupID == "" || seen[rec.GroupID] {
			continue
		}
		seen[rec.GroupID] = true

		seq, err := s.history.GroupAlerts(ctx, rec.GroupID)
		if err != nil {
			return nil, err
		}
		if isClosedSequence(seq, cfg) {
			continue
		}
		out = append(out, summarize(rec.GroupID, seq))
	}
	return out, nil
}

func summarize(groupID string, seq []Record) candidate {
	c := candidate{groupID: groupID}
	for _, rec := range seq {
		if c.entryPrice == nil {
			if rec.EntryPrice != nil {
				c.entryPrice = rec.EntryPrice
			} else if rec.AlertType == alert.TypeEntry && rec.OrderPrice != nil {
				c.entryPrice = rec.OrderPrice
			}
		}
		if rec.PositionSize != nil {
			c.latestSize = rec.PositionSize
		}
		if rec.Timestamp.After(c.latestTS) {
			c.latestTS = rec.Timestamp
		}
	}
	return c
}

// pickCandidate disambiguates between several active groups: an exact
// position-size match wins, then the group with the closest recent
// activity, then simply the most recently active one.
func pickCandidate(candidates []candidate, n *alert.Normalized) candidate {
	if len(candidates) == 1 {
		return candidates[0]
	}
	if n.PositionSize != nil {
		for _, c := range candidates {
			if c.latestSize != nil && math.Abs(*c.latestSize-*n.PositionSize) <= sizeEpsilon {
				return c
			}
		}
	}

	best := candidates[0]
	if !n.Timestamp.IsZero() {
		bestDelta := time.Duration(math.MaxInt64)
		for _, c := range candidates {
			if c.latestTS.IsZero() {
				continue
			}
			delta := n.Timestamp.Sub(c.latestTS)
			if delta < 0 {
				delta = -delta
			}
			if delta < bestDelta {
				bestDelta = delta
				best = c
			}
		}
		if bestDelta < time.Duration(math.MaxInt64) {
			return best
		}
	}
	for _, c := range candidates[1:] {
		if c.latestTS.After(best.latestTS) {
			best = c
		}
	}
	return best
}

func oppositeDirection(direction string) string {
	if direction == "long" {
		return "short"
	}
	return "long"
}

func entryPriceOf(n *alert.Normalized) *float64 {
	if n.EntryPrice != nil {
		return n.EntryPrice
	}
	return n.OrderPrice
}
