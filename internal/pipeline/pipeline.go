package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tradehook/internal/alert"
	"tradehook/internal/logger"
	"tradehook/internal/notifier"
	"tradehook/internal/pnl"
	"tradehook/internal/store/gormstore"
	"tradehook/internal/store/rawlog"
	"tradehook/internal/tradegroup"

	"golang.org/x/sync/errgroup"
)

// AlertStore persists processed alerts.
type AlertStore interface {
	AppendAlert(ctx context.Context, rec gormstore.AlertRecord) (int64, error)
}

// RawRecorder captures webhook bodies before parsing. Optional.
type RawRecorder interface {
	Record(ctx context.Context, e rawlog.Entry) (int64, error)
}

// Correlator is the trade-group resolution surface the pipeline needs.
type Correlator interface {
	Determine(ctx context.Context, userID int64, broker string, n *alert.Normalized) (tradegroup.Result, error)
	IsClosed(ctx context.Context, userID int64, broker, groupID string) (bool, error)
	DetectChanges(ctx context.Context, groupID string, stopLoss, takeProfit *float64) (tradegroup.ChangeSet, error)
	TPHitStatus(ctx context.Context, groupID string) (tradegroup.TPHitReport, error)
}

// Request is one incoming webhook delivery.
type Request struct {
	UserID     int64
	Broker     string
	Identifier string
	RemoteAddr string
	Body       []byte
	ReceivedAt time.Time
}

// Outcome is everything the pipeline derived from one delivery.
type Outcome struct {
	RecordID   int64                   `json:"record_id"`
	Alert      *alert.Normalized       `json:"alert"`
	Group      tradegroup.Result       `json:"group"`
	GroupState tradegroup.Status       `json:"group_state,omitempty"`
	PnL        *pnl.ExitPnL            `json:"pnl,omitempty"`
	Changes    *tradegroup.ChangeSet   `json:"changes,omitempty"`
	TPHits     *tradegroup.TPHitReport `json:"tp_hits,omitempty"`
}

// Processor runs a webhook delivery through parse, normalize, classify,
// correlate, PnL and persistence.
type Processor struct {
	store      AlertStore
	raw        RawRecorder
	correlator Correlator
	notify     notifier.Notifier
	locks      *keyedMutex
}

func NewProcessor(store AlertStore, raw RawRecorder, correlator Correlator, notify notifier.Notifier) *Processor {
	if notify == nil {
		notify = notifier.NewLogNotifier()
	}
	return &Processor{
		store:      store,
		raw:        raw,
		correlator: correlator,
		notify:     notify,
		locks:      newKeyedMutex(),
	}
}

// Process handles one delivery end to end. Malformed bodies are never an
// error: they degrade to an UNKNOWN alert that is still recorded.
func (p *Processor) Process(ctx context.Context, req Request) (Outcome, error) {
	payload, parseErr := decodeBody(req.Body)
	p.recordRaw(ctx, req, parseErr)

	n := alert.Normalize(payload)
	logger.Debugf("pipeline: %s alert on %q from broker %s", n.AlertType, n.Symbol, req.Broker)

	// Alerts for the same user and symbol must observe each other's
	// writes, otherwise two exits could both mint orphan groups.
	unlock := p.locks.Lock(lockKey(req.UserID, n.Symbol))
	defer unlock()

	group, err := p.correlator.Determine(ctx, req.UserID, req.Broker, n)
	if err != nil {
		return Outcome{}, fmt.Errorf("correlate alert: %w", err)
	}

	out := Outcome{Alert: n, Group: group}
	if n.AlertType.IsExit() && group.GroupID != "" {
		out.PnL = p.exitPnL(n, group)

		changes, err := p.correlator.DetectChanges(ctx, group.GroupID, n.StopLossPrice, n.TakeProfitPrice)
		if err != nil {
			logger.Warnf("pipeline: change detection failed for %s: %v", group.GroupID, err)
		} else {
			out.Changes = &changes
		}
	}

	rec := buildRecord(req, n, group, out.PnL)
	id, err := p.store.AppendAlert(ctx, rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("persist alert: %w", err)
	}
	out.RecordID = id

	if group.GroupID != "" {
		p.enrich(ctx, req, &out)
	}
	p.dispatch(ctx, req, &out)
	return out, nil
}

// enrich fills the post-persist views of the group. Failures here only
// degrade the response, never the recording.
func (p *Processor) enrich(ctx context.Context, req Request, out *Outcome) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		closed, err := p.correlator.IsClosed(gctx, req.UserID, req.Broker, out.Group.GroupID)
		if err != nil {
			return err
		}
		if closed {
			out.GroupState = tradegroup.StatusClosed
		} else {
			out.GroupState = tradegroup.StatusActive
		}
		return nil
	})
	g.Go(func() error {
		report, err := p.correlator.TPHitStatus(gctx, out.Group.GroupID)
		if err != nil {
			return err
		}
		out.TPHits = &report
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warnf("pipeline: group enrichment failed for %s: %v", out.Group.GroupID, err)
	}
}

func (p *Processor) dispatch(ctx context.Context, req Request, out *Outcome) {
	evt := notifier.Event{
		Kind:      eventKind(out.Alert.AlertType),
		UserID:    req.UserID,
		Broker:    req.Broker,
		Symbol:    out.Alert.Symbol,
		Direction: out.Group.Direction,
		GroupID:   out.Group.GroupID,
		Level:     tradegroup.LevelOf(out.Alert),
		Price:     out.Alert.OrderPrice,
	}
	if out.PnL != nil {
		evt.PnLPercent = alert.Float(out.PnL.PnLPercent)
	}
	if err := p.notify.Notify(ctx, evt); err != nil {
		logger.Warnf("pipeline: notification failed: %v", err)
	}

	if out.GroupState == tradegroup.StatusClosed {
		closedEvt := evt
		closedEvt.Kind = notifier.KindGroupClosed
		closedEvt.Message = "trade group closed"
		if err := p.notify.Notify(ctx, closedEvt); err != nil {
			logger.Warnf("pipeline: close notification failed: %v", err)
		}
	}
}

func (p *Processor) recordRaw(ctx context.Context, req Request, parseErr error) {
	if p.raw == nil {
		return
	}
	entry := rawlog.Entry{
		TS:         req.ReceivedAt.Unix(),
		Broker:     req.Broker,
		Identifier: req.Identifier,
		RemoteAddr: req.RemoteAddr,
		Body:       string(req.Body),
	}
	if parseErr != nil {
		entry.ParseError = parseErr.Error()
	}
	if _, err := p.raw.Record(ctx, entry); err != nil {
		logger.Warnf("pipeline: raw log write failed: %v", err)
	}
}

func (p *Processor) exitPnL(n *alert.Normalized, group tradegroup.Result) *pnl.ExitPnL {
	if group.EntryPrice == nil || n.OrderPrice == nil {
		return nil
	}
	quantity := 1.0
	if n.OrderContracts != nil {
		quantity = *n.OrderContracts
	}
	result, err := pnl.CalculateExitPnL(*group.EntryPrice, *n.OrderPrice, group.Direction, quantity)
	if err != nil {
		logger.Warnf("pipeline: pnl skipped for %s: %v", group.GroupID, err)
		return nil
	}
	return &result
}

func buildRecord(req Request, n *alert.Normalized, group tradegroup.Result, exitPnL *pnl.ExitPnL) gormstore.AlertRecord {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = req.ReceivedAt
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := gormstore.AlertRecord{
		Record: tradegroup.Record{
			UserID:         req.UserID,
			Broker:         req.Broker,
			Symbol:         n.Symbol,
			GroupID:        group.GroupID,
			Direction:      group.Direction,
			AlertType:      n.AlertType,
			Level:          tradegroup.LevelOf(n),
			PositionSize:   n.PositionSize,
			EntryPrice:     group.EntryPrice,
			OrderPrice:     n.OrderPrice,
			Quantity:       n.OrderContracts,
			StopLoss:       n.StopLossPrice,
			TakeProfit:     n.TakeProfitPrice,
			ClosesPosition: n.ClosesPosition != nil && *n.ClosesPosition,
			MarketPosition: n.MarketPosition,
			Timestamp:      ts,
		},
		Action:     n.Action,
		OrderType:  n.OrderType,
		IsNewGroup: group.IsNewGroup,
	}
	if exitPnL != nil {
		rec.RealizedPnLPercent = alert.Float(exitPnL.PnLPercent)
		rec.RealizedPnLAbsolute = alert.Float(exitPnL.PnLAbsolute)
	}
	if raw, err := json.Marshal(n.Raw); err == nil {
		rec.RawPayload = raw
	}
	return rec
}

// decodeBody parses the webhook body tolerantly: a valid JSON object is
// used as-is, anything else goes through the same repair path as embedded
// alert messages, and as a last resort the body is kept verbatim.
func decodeBody(body []byte) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return map[string]any{}, fmt.Errorf("empty body")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload, nil
	}

	if repaired := alert.ParseSubMessage(trimmed); len(repaired) > 0 {
		return repaired, fmt.Errorf("body was not valid JSON, recovered %d fields", len(repaired))
	}
	return map[string]any{"order_alert_message": trimmed}, fmt.Errorf("body was not valid JSON")
}

func eventKind(t alert.Type) notifier.EventKind {
	switch {
	case t == alert.TypeEntry:
		return notifier.KindEntry
	case t.TPLevel() > 0:
		return notifier.KindTakeProfit
	case t == alert.TypeStopLoss:
		return notifier.KindStopLoss
	case t == alert.TypePartial:
		return notifier.KindPartialExit
	case t == alert.TypeExit:
		return notifier.KindExit
	default:
		return notifier.KindUnknown
	}
}

func lockKey(userID int64, symbol string) string {
	return fmt.Sprintf("%d|%s", userID, strings.ToUpper(symbol))
}
