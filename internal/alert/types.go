package alert

import (
	"fmt"
	"time"
)

// Type is the classified role of an alert inside a trade lifecycle.
type Type string

const (
	TypeEntry    Type = "ENTRY"
	TypeTP1      Type = "TP1"
	TypeTP2      Type = "TP2"
	TypeTP3      Type = "TP3"
	TypeTP4      Type = "TP4"
	TypeTP5      Type = "TP5"
	TypeStopLoss Type = "SL"
	TypePartial  Type = "PARTIAL"
	TypeExit     Type = "EXIT"
	TypeUnknown  Type = "UNKNOWN"
)

// MaxTPLevels is the number of take-profit slots carried by a normalized alert.
const MaxTPLevels = 5

// TPLevel returns the take-profit level (1..5) for TP types, 0 otherwise.
func (t Type) TPLevel() int {
	switch t {
	case TypeTP1:
		return 1
	case TypeTP2:
		return 2
	case TypeTP3:
		return 3
	case TypeTP4:
		return 4
	case TypeTP5:
		return 5
	}
	return 0
}

// TPForLevel maps a level number to the matching TP type.
func TPForLevel(level int) (Type, bool) {
	if level < 1 || level > MaxTPLevels {
		return TypeUnknown, false
	}
	return Type(fmt.Sprintf("TP%d", level)), true
}

// IsExit reports whether the type reduces or closes a position.
func (t Type) IsExit() bool {
	switch t {
	case TypeTP1, TypeTP2, TypeTP3, TypeTP4, TypeTP5, TypeStopLoss, TypePartial, TypeExit:
		return true
	}
	return false
}

// Normalized is the canonical projection of one inbound alert. Numeric
// fields are pointers: nil means the sender did not supply the field, which
// is distinct from an explicit zero (a remaining position size of 0 closes
// a trade, a missing one says nothing).
type Normalized struct {
	Symbol    string `json:"symbol"`
	Action    string `json:"action"`
	OrderType string `json:"order_type"`
	AlertType Type   `json:"alert_type"`

	OrderPrice      *float64 `json:"order_price,omitempty"`
	EntryPrice      *float64 `json:"entry_price,omitempty"`
	StopLossPrice   *float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *float64 `json:"take_profit_price,omitempty"`

	OrderContracts *float64 `json:"order_contracts,omitempty"`
	PositionSize   *float64 `json:"position_size,omitempty"`

	MarketPosition     string `json:"market_position"`
	PrevMarketPosition string `json:"prev_market_position"`
	IsPositionClosed   bool   `json:"is_position_closed"`

	Leverage   *float64 `json:"leverage,omitempty"`
	Pyramiding *int     `json:"pyramiding,omitempty"`

	ExitStop        *float64 `json:"exit_stop,omitempty"`
	ExitLimit       *float64 `json:"exit_limit,omitempty"`
	ExitLossTicks   *float64 `json:"exit_loss_ticks,omitempty"`
	ExitProfitTicks *float64 `json:"exit_profit_ticks,omitempty"`
	ExitTrailPrice  *float64 `json:"exit_trail_price,omitempty"`
	ExitTrailOffset *float64 `json:"exit_trail_offset,omitempty"`

	// TakeProfits[i] holds level i+1; TPCount is the sender-declared number
	// of levels the strategy intends to scale out over.
	TakeProfits [MaxTPLevels]*float64 `json:"take_profits"`
	TPCount     *int                  `json:"tp_count,omitempty"`

	// Indicator-only auxiliary fields.
	PlotValues map[string]float64 `json:"plot_values,omitempty"`
	Bull       *bool              `json:"bull,omitempty"`
	Bear       *bool              `json:"bear,omitempty"`
	BullExit   *bool              `json:"bull_exit,omitempty"`
	BearExit   *bool              `json:"bear_exit,omitempty"`

	// ClosesPosition is the sender's explicit "this closes the position"
	// flag; nil when the sender did not say either way.
	ClosesPosition *bool `json:"closes_position,omitempty"`

	// SignalType is the raw indicator signal tag (bull_entry, tp2, sl1, ...)
	// when the sender used the indicator format; empty otherwise.
	SignalType string `json:"signal_type,omitempty"`

	OrderID      string    `json:"order_id,omitempty"`
	OrderComment string    `json:"order_comment,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`

	// Raw keeps the original payload for audit; it is never re-parsed.
	Raw map[string]any `json:"raw_payload,omitempty"`
}

// TakeProfit returns the price of the given level (1..5), nil when unset.
func (n *Normalized) TakeProfit(level int) *float64 {
	if level < 1 || level > MaxTPLevels {
		return nil
	}
	return n.TakeProfits[level-1]
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

func Bool(v bool) *bool { return &v }
