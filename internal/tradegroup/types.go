package tradegroup

import (
	"context"
	"time"

	"tradehook/internal/alert"
)

// Lookback bounds for the active-group search: correlation only ever
// considers recent history so each decision stays O(recent alerts).
const (
	LookbackWindow = 7 * 24 * time.Hour
	LookbackLimit  = 100
)

// sizeEpsilon is the tolerance for matching reported position sizes.
const sizeEpsilon = 0.0001

// Record is one prior processed alert as persisted by the history store.
type Record struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Broker    string     `json:"broker"`
	Symbol    string     `json:"symbol"`
	GroupID   string     `json:"trade_group_id"`
	Direction string     `json:"trade_direction"`
	AlertType alert.Type `json:"alert_type"`

	// Level is the classified exit level: TP1..TP5, SL, SL2/SL3 for
	// multi-level stop-outs, PARTIAL, EXIT, or ENTRY.
	Level string `json:"level,omitempty"`

	PositionSize        *float64 `json:"position_size,omitempty"`
	EntryPrice          *float64 `json:"entry_price,omitempty"`
	OrderPrice          *float64 `json:"order_price,omitempty"`
	Quantity            *float64 `json:"quantity,omitempty"`
	StopLoss            *float64 `json:"stop_loss,omitempty"`
	TakeProfit          *float64 `json:"take_profit,omitempty"`
	RealizedPnLPercent  *float64 `json:"realized_pnl_percent,omitempty"`
	RealizedPnLAbsolute *float64 `json:"realized_pnl_absolute,omitempty"`

	ClosesPosition bool      `json:"closes_position,omitempty"`
	MarketPosition string    `json:"market_position,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Result is the correlator's verdict for one alert.
type Result struct {
	GroupID    string   `json:"trade_group_id"`
	Direction  string   `json:"trade_direction"`
	IsNewGroup bool     `json:"is_new_group"`
	EntryPrice *float64 `json:"entry_price,omitempty"`
}

// HistoryQuery is the read interface onto the append-only alert history.
type HistoryQuery interface {
	// RecentAlerts returns records for (user, symbol, direction) since the
	// given time, newest first, capped at LookbackLimit rows.
	RecentAlerts(ctx context.Context, userID int64, symbol, direction string, since time.Time) ([]Record, error)
	// GroupAlerts returns the full sequence for one group, oldest first.
	GroupAlerts(ctx context.Context, groupID string) ([]Record, error)
}

// SymbolConfig is the per-user/symbol scale-out configuration.
type SymbolConfig struct {
	TPCount int `json:"tp_count"`
	SLCount int `json:"sl_count"`
}

// DefaultSymbolConfig is used when a symbol has no stored configuration.
var DefaultSymbolConfig = SymbolConfig{TPCount: 1, SLCount: 1}

// SymbolConfigLookup resolves the configured TP/SL level counts.
type SymbolConfigLookup interface {
	Get(ctx context.Context, userID int64, symbol, broker string) (SymbolConfig, error)
}

// Status of a trade group, always recomputed from its alert sequence.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)
