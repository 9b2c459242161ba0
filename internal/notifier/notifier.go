package notifier

import (
	"context"
	"fmt"
	"strings"

	"tradehook/internal/logger"
)

// EventKind labels what happened to a trade group.
type EventKind string

const (
	KindEntry       EventKind = "entry"
	KindTakeProfit  EventKind = "take_profit"
	KindStopLoss    EventKind = "stop_loss"
	KindPartialExit EventKind = "partial_exit"
	KindExit        EventKind = "exit"
	KindGroupClosed EventKind = "group_closed"
	KindUnknown     EventKind = "unknown"
)

// Event is one user-facing signal notification.
type Event struct {
	Kind       EventKind `json:"kind"`
	UserID     int64     `json:"user_id"`
	Broker     string    `json:"broker"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction,omitempty"`
	GroupID    string    `json:"trade_group_id,omitempty"`
	Level      string    `json:"level,omitempty"`
	Price      *float64  `json:"price,omitempty"`
	PnLPercent *float64  `json:"pnl_percent,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Notifier delivers trade events to the user.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// LogNotifier writes events to the application log. It is the default
// sink when no external channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Notify(ctx context.Context, evt Event) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] user=%d %s %s", evt.Kind, evt.UserID, evt.Symbol, evt.Direction)
	if evt.Level != "" {
		fmt.Fprintf(&b, " level=%s", evt.Level)
	}
	if evt.Price != nil {
		fmt.Fprintf(&b, " price=%.5f", *evt.Price)
	}
	if evt.PnLPercent != nil {
		fmt.Fprintf(&b, " pnl=%.2f%%", *evt.PnLPercent)
	}
	if evt.GroupID != "" {
		fmt.Fprintf(&b, " group=%s", evt.GroupID)
	}
	if evt.Message != "" {
		fmt.Fprintf(&b, " %s", evt.Message)
	}
	logger.Infof("notify %s", b.String())
	return nil
}

// Multi fans an event out to several notifiers, returning the first
// error after all have been attempted.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
