package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradehook/internal/alert"
	storemodel "tradehook/internal/store/model"
	"tradehook/internal/tradegroup"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type alertModel = storemodel.AlertModel

// AlertRecord is a history record plus the request-level fields that the
// correlator does not need but the API surfaces.
type AlertRecord struct {
	tradegroup.Record

	Action     string `json:"action,omitempty"`
	OrderType  string `json:"order_type,omitempty"`
	IsNewGroup bool   `json:"is_new_group,omitempty"`
	RawPayload []byte `json:"raw_payload,omitempty"`
}

// ListFilter narrows ListAlerts. Zero values match everything.
type ListFilter struct {
	UserID  int64
	Symbol  string
	GroupID string
	Limit   int
}

// GormStore persists processed alerts in SQLite via Gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (and migrates) the alert history database.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&alertModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ tradegroup.HistoryQuery = (*GormStore)(nil)

// AppendAlert inserts one processed alert and returns its row id.
func (s *GormStore) AppendAlert(ctx context.Context, rec AlertRecord) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store not initialized")
	}
	m := toModel(rec)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, fmt.Errorf("append alert failed: %w", err)
	}
	return m.ID, nil
}

// RecentAlerts returns records for (user, symbol, direction) since the
// given time, newest first, capped at the correlator's lookback limit.
func (s *GormStore) RecentAlerts(ctx context.Context, userID int64, symbol, direction string, since time.Time) ([]tradegroup.Record, error) {
	var models []alertModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND trade_direction = ? AND alert_at >= ?",
			userID, strings.ToUpper(symbol), direction, since.Unix()).
		Order("alert_at DESC").
		Limit(tradegroup.LookbackLimit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query recent alerts failed: %w", err)
	}
	return toRecords(models), nil
}

// GroupAlerts returns one group's full sequence, oldest first.
func (s *GormStore) GroupAlerts(ctx context.Context, groupID string) ([]tradegroup.Record, error) {
	var models []alertModel
	err := s.db.WithContext(ctx).
		Where("trade_group_id = ?", groupID).
		Order("alert_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query group alerts failed: %w", err)
	}
	return toRecords(models), nil
}

// ListAlerts returns full records for the API, newest first.
func (s *GormStore) ListAlerts(ctx context.Context, filter ListFilter) ([]AlertRecord, error) {
	q := s.db.WithContext(ctx).Model(&alertModel{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(filter.Symbol))
	}
	if filter.GroupID != "" {
		q = q.Where("trade_group_id = ?", filter.GroupID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []alertModel
	if err := q.Order("alert_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list alerts failed: %w", err)
	}
	out := make([]AlertRecord, 0, len(models))
	for _, m := range models {
		out = append(out, fromModel(m))
	}
	return out, nil
}

func toModel(rec AlertRecord) alertModel {
	alertAt := rec.Timestamp
	if alertAt.IsZero() {
		alertAt = time.Now()
	}
	return alertModel{
		UserID:              rec.UserID,
		Broker:              rec.Broker,
		Symbol:              strings.ToUpper(rec.Symbol),
		Direction:           rec.Direction,
		GroupID:             rec.GroupID,
		AlertType:           string(rec.AlertType),
		Level:               rec.Level,
		Action:              rec.Action,
		OrderType:           rec.OrderType,
		MarketPosition:      rec.MarketPosition,
		OrderPrice:          rec.OrderPrice,
		EntryPrice:          rec.EntryPrice,
		StopLoss:            rec.StopLoss,
		TakeProfit:          rec.TakeProfit,
		Quantity:            rec.Quantity,
		PositionSize:        rec.PositionSize,
		RealizedPnLPercent:  rec.RealizedPnLPercent,
		RealizedPnLAbsolute: rec.RealizedPnLAbsolute,
		ClosesPosition:      rec.ClosesPosition,
		IsNewGroup:          rec.IsNewGroup,
		RawPayload:          datatypes.JSON(rec.RawPayload),
		AlertAtUnix:         alertAt.Unix(),
		CreatedAtUnix:       time.Now().Unix(),
	}
}

func fromModel(m alertModel) AlertRecord {
	return AlertRecord{
		Record:     toRecord(m),
		Action:     m.Action,
		OrderType:  m.OrderType,
		IsNewGroup: m.IsNewGroup,
		RawPayload: []byte(m.RawPayload),
	}
}

func toRecord(m alertModel) tradegroup.Record {
	return tradegroup.Record{
		ID:                  m.ID,
		UserID:              m.UserID,
		Broker:              m.Broker,
		Symbol:              m.Symbol,
		GroupID:             m.GroupID,
		Direction:           m.Direction,
		AlertType:           alertType(m.AlertType),
		Level:               m.Level,
		PositionSize:        m.PositionSize,
		EntryPrice:          m.EntryPrice,
		OrderPrice:          m.OrderPrice,
		Quantity:            m.Quantity,
		StopLoss:            m.StopLoss,
		TakeProfit:          m.TakeProfit,
		RealizedPnLPercent:  m.RealizedPnLPercent,
		RealizedPnLAbsolute: m.RealizedPnLAbsolute,
		ClosesPosition:      m.ClosesPosition,
		MarketPosition:      m.MarketPosition,
		Timestamp:           time.Unix(m.AlertAtUnix, 0).UTC(),
	}
}

func alertType(raw string) alert.Type {
	if raw == "" {
		return alert.TypeUnknown
	}
	return alert.Type(raw)
}

func toRecords(models []alertModel) []tradegroup.Record {
	out := make([]tradegroup.Record, 0, len(models))
	for _, m := range models {
		out = append(out, toRecord(m))
	}
	return out
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory failed: %w", err)
	}
	return nil
}
