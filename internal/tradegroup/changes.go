package tradegroup

import (
	"context"

	"github.com/shopspring/decimal"
)

// changeEpsilon is the price tolerance below which a moved SL/TP is not
// reported as a change.
var changeEpsilon = decimal.NewFromFloat(0.0001)

// ChangeSet reports whether an alert moved the group's stop loss or take
// profit relative to the last alert that carried one.
type ChangeSet struct {
	StopLossChanged   bool     `json:"stop_loss_changed"`
	TakeProfitChanged bool     `json:"take_profit_changed"`
	PrevStopLoss      *float64 `json:"prev_stop_loss,omitempty"`
	PrevTakeProfit    *float64 `json:"prev_take_profit,omitempty"`
}

// DetectChanges compares the incoming SL/TP against the most recent prior
// alert in the group that carried a value for the same field. A value that
// newly appears counts as a change; a value that disappears does not.
func (s *Service) DetectChanges(ctx context.Context, groupID string, stopLoss, takeProfit *float64) (ChangeSet, error) {
	seq, err := s.history.GroupAlerts(ctx, groupID)
	if err != nil {
		return ChangeSet{}, err
	}

	var cs ChangeSet
	for i := len(seq) - 1; i >= 0; i-- {
		if cs.PrevStopLoss == nil && seq[i].StopLoss != nil {
			cs.PrevStopLoss = seq[i].StopLoss
		}
		if cs.PrevTakeProfit == nil && seq[i].TakeProfit != nil {
			cs.PrevTakeProfit = seq[i].TakeProfit
		}
		if cs.PrevStopLoss != nil && cs.PrevTakeProfit != nil {
			break
		}
	}

	cs.StopLossChanged = valueChanged(cs.PrevStopLoss, stopLoss)
	cs.TakeProfitChanged = valueChanged(cs.PrevTakeProfit, takeProfit)
	return cs, nil
}

func valueChanged(prev, cur *float64) bool {
	if cur == nil {
		return false
	}
	if prev == nil {
		return true
	}
	diff := decimal.NewFromFloat(*cur).Sub(decimal.NewFromFloat(*prev)).Abs()
	return diff.GreaterThan(changeEpsilon)
}
