package model

import (
	"time"

	"gorm.io/datatypes"
)

// AlertModel is the persisted form of one processed webhook alert. Rows
// are append-only; trade group state is always derived from them, never
// written back.
type AlertModel struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	UserID int64  `gorm:"column:user_id;index:idx_alert_lookup,priority:1"`
	Broker string `gorm:"column:broker"`

	Symbol    string `gorm:"column:symbol;index:idx_alert_lookup,priority:2"`
	Direction string `gorm:"column:trade_direction;index:idx_alert_lookup,priority:3"`
	GroupID   string `gorm:"column:trade_group_id;index"`
	AlertType string `gorm:"column:alert_type"`
	Level     string `gorm:"column:level"`

	Action         string `gorm:"column:action"`
	OrderType      string `gorm:"column:order_type"`
	MarketPosition string `gorm:"column:market_position"`

	OrderPrice          *float64 `gorm:"column:order_price"`
	EntryPrice          *float64 `gorm:"column:entry_price"`
	StopLoss            *float64 `gorm:"column:stop_loss"`
	TakeProfit          *float64 `gorm:"column:take_profit"`
	Quantity            *float64 `gorm:"column:quantity"`
	PositionSize        *float64 `gorm:"column:position_size"`
	RealizedPnLPercent  *float64 `gorm:"column:realized_pnl_percent"`
	RealizedPnLAbsolute *float64 `gorm:"column:realized_pnl_absolute"`

	ClosesPosition bool `gorm:"column:closes_position"`
	IsNewGroup     bool `gorm:"column:is_new_group"`

	RawPayload datatypes.JSON `gorm:"column:raw_payload;type:TEXT"`

	AlertAtUnix   int64 `gorm:"column:alert_at;index:idx_alert_lookup,priority:4"`
	CreatedAtUnix int64 `gorm:"column:created_at"`

	AlertAt   time.Time `gorm:"-"`
	CreatedAt time.Time `gorm:"-"`
}

func (AlertModel) TableName() string { return "webhook_alerts" }
