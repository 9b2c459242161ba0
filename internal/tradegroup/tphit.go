package tradegroup

import (
	"context"
	"regexp"
	"strings"
	"time"

	"tradehook/internal/alert"
)

// TPHit captures the first alert that realized a given take-profit level.
type TPHit struct {
	Hit        bool      `json:"hit"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	Price      *float64  `json:"price,omitempty"`
	PnLPercent *float64  `json:"pnl_percent,omitempty"`
}

// TPHitReport summarizes the scale-out progress of a trade group across
// the first three take-profit levels.
type TPHitReport struct {
	TP1 TPHit `json:"tp1"`
	TP2 TPHit `json:"tp2"`
	TP3 TPHit `json:"tp3"`
	// AllComplete is true once TP1 through TP3 have each been hit at
	// least once.
	AllComplete bool `json:"all_tps_complete"`
}

// TPHitStatus walks a group's alert sequence and reports which TP levels
// have been hit. Each level keeps only its first occurrence.
func (s *Service) TPHitStatus(ctx context.Context, groupID string) (TPHitReport, error) {
	seq, err := s.history.GroupAlerts(ctx, groupID)
	if err != nil {
		return TPHitReport{}, err
	}
	return buildTPHitReport(seq), nil
}

func buildTPHitReport(seq []Record) TPHitReport {
	var report TPHitReport
	hits := [...]*TPHit{&report.TP1, &report.TP2, &report.TP3}

	for _, rec := range seq {
		level := rec.AlertType.TPLevel()
		if level < 1 || level > len(hits) {
			continue
		}
		hit := hits[level-1]
		if hit.Hit {
			continue
		}
		hit.Hit = true
		hit.Timestamp = rec.Timestamp
		hit.Price = exitPriceOf(rec)
		hit.PnLPercent = rec.RealizedPnLPercent
	}

	report.AllComplete = report.TP1.Hit && report.TP2.Hit && report.TP3.Hit
	return report
}

func exitPriceOf(rec Record) *float64 {
	if rec.OrderPrice != nil {
		return rec.OrderPrice
	}
	if rec.AlertType.TPLevel() > 0 {
		return rec.TakeProfit
	}
	return nil
}

var slSignalRe = regexp.MustCompile(`^sl(\d+)$`)

// LevelOf labels a record's exit level for persistence: ENTRY, TP1..TP5,
// SL (or SL2+ when the indicator tags a deeper stop level), PARTIAL or
// EXIT. Unknown alerts get no label.
func LevelOf(n *alert.Normalized) string {
	switch {
	case n.AlertType == alert.TypeUnknown:
		return ""
	case n.AlertType == alert.TypeStopLoss:
		if m := slSignalRe.FindStringSubmatch(strings.ToLower(n.SignalType)); m != nil && m[1] != "1" {
			return "SL" + m[1]
		}
		return string(alert.TypeStopLoss)
	default:
		return string(n.AlertType)
	}
}
