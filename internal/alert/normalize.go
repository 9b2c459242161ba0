package alert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tradehook/internal/logger"
)

// source selects which mapping an alias candidate reads from.
type source int

const (
	fromOuter source = iota
	fromSub
)

type candidate struct {
	from source
	key  string
}

func o(key string) candidate { return candidate{fromOuter, key} }
func s(key string) candidate { return candidate{fromSub, key} }

// Alias tables. The slice order is the resolution order: first candidate
// holding a non-nil value wins, so 0 survives where a truthiness check
// would have dropped it.
var (
	symbolAliases    = []string{"symbol", "instrument", "ticker"}
	actionAliases    = []candidate{s("action"), s("side"), s("order_action"), o("action"), o("side"), o("order_action")}
	orderTypeAliases = []candidate{s("order_type"), o("order_type")}

	marketPositionAliases = []candidate{o("market_position"), s("market_position")}
	prevPositionAliases   = []candidate{o("prev_market_position"), s("prev_market_position")}
	signalTypeAliases     = []candidate{o("signal_type"), s("signal_type")}

	numericAliases = map[string][]candidate{
		"order_contracts":   {o("order_contracts"), o("contracts"), o("quantity"), s("order_contracts"), s("contracts"), s("quantity")},
		"position_size":     {o("position_size"), s("position_size")},
		"order_price":       {o("order_price"), o("price"), s("order_price"), s("price")},
		"entry_price":       {o("entry_price"), o("position_avg_price"), s("entry_price")},
		"stop_loss_price":   {s("stop_loss_price"), o("stop_loss_price"), o("stop_loss"), s("stop_loss")},
		"take_profit_price": {s("take_profit_price"), o("take_profit_price"), o("take_profit")},
		"exit_stop":         {o("exit_stop"), s("exit_stop")},
		"exit_limit":        {o("exit_limit"), s("exit_limit")},
		"exit_loss_ticks":   {o("exit_loss_ticks"), s("exit_loss_ticks")},
		"exit_profit_ticks": {o("exit_profit_ticks"), s("exit_profit_ticks")},
		"exit_trail_price":  {o("exit_trail_price"), s("exit_trail_price")},
		"exit_trail_offset": {o("exit_trail_offset"), s("exit_trail_offset")},
		"leverage":          {s("leverage"), o("leverage")},
		"tp_count":          {o("tp_count"), s("tp_count")},
		"pyramiding":        {s("pyramiding"), o("pyramiding")},
	}

	boolAliases = map[string][]candidate{
		"bull":            {o("bull"), s("bull"), o("is_bull"), s("is_bull")},
		"bear":            {o("bear"), s("bear"), o("is_bear"), s("is_bear")},
		"bull_exit":       {o("bull_exit"), s("bull_exit")},
		"bear_exit":       {o("bear_exit"), s("bear_exit")},
		"closes_position": {o("closes_position"), s("closes_position")},
	}
)

// tpAliases returns the resolution chain for one take-profit level.
// Vendors disagree on field naming: numbered snake_case, bare tpN,
// capitalized display names, and per-direction "Long/Short TP-N Price"
// variants all occur in the wild.
func tpAliases(level int, direction string) []candidate {
	cands := []candidate{
		o(fmt.Sprintf("take_profit_%d", level)),
		s(fmt.Sprintf("take_profit_%d", level)),
		o(fmt.Sprintf("tp%d", level)),
		s(fmt.Sprintf("tp%d", level)),
		o(fmt.Sprintf("tp%d_price", level)),
		o(fmt.Sprintf("TP%d", level)),
		o(fmt.Sprintf("Take Profit %d", level)),
	}
	switch direction {
	case "long":
		cands = append(cands, o(fmt.Sprintf("Long TP%d Price", level)), o(fmt.Sprintf("Short TP%d Price", level)))
	case "short":
		cands = append(cands, o(fmt.Sprintf("Short TP%d Price", level)), o(fmt.Sprintf("Long TP%d Price", level)))
	default:
		cands = append(cands, o(fmt.Sprintf("Long TP%d Price", level)), o(fmt.Sprintf("Short TP%d Price", level)))
	}
	return cands
}

// Normalize projects a raw webhook payload onto the canonical alert shape.
// It never fails: an empty or unrecognizable payload produces an all-empty
// UNKNOWN record, and individual unparsable fields degrade to absent.
func Normalize(payload map[string]any) *Normalized {
	if payload == nil {
		payload = map[string]any{}
	}
	sub := map[string]any{}
	if msg, ok := payload["order_alert_message"].(string); ok {
		sub = ParseSubMessage(msg)
	}

	n := &Normalized{Raw: payload}

	for _, key := range symbolAliases {
		v, ok := payload[key].(string)
		if ok && v != "" && !isPlaceholder(v) {
			n.Symbol = strings.ToUpper(v)
			break
		}
	}

	n.Action = resolveTag(payload, sub, actionAliases)
	n.OrderType = resolveTag(payload, sub, orderTypeAliases)

	n.OrderContracts = resolveFloat(payload, sub, "order_contracts")
	n.PositionSize = resolveFloat(payload, sub, "position_size")
	n.OrderPrice = resolveFloat(payload, sub, "order_price")
	n.EntryPrice = resolveFloat(payload, sub, "entry_price")
	n.StopLossPrice = resolveFloat(payload, sub, "stop_loss_price")
	n.TakeProfitPrice = resolveFloat(payload, sub, "take_profit_price")
	n.ExitStop = resolveFloat(payload, sub, "exit_stop")
	n.ExitLimit = resolveFloat(payload, sub, "exit_limit")
	n.ExitLossTicks = resolveFloat(payload, sub, "exit_loss_ticks")
	n.ExitProfitTicks = resolveFloat(payload, sub, "exit_profit_ticks")
	n.ExitTrailPrice = resolveFloat(payload, sub, "exit_trail_price")
	n.ExitTrailOffset = resolveFloat(payload, sub, "exit_trail_offset")
	n.Leverage = resolveFloat(payload, sub, "leverage")
	n.Pyramiding = resolveInt(payload, sub, "pyramiding")
	n.TPCount = resolveInt(payload, sub, "tp_count")

	n.MarketPosition = resolveTag(payload, sub, marketPositionAliases)
	n.PrevMarketPosition = resolveTag(payload, sub, prevPositionAliases)
	n.IsPositionClosed = n.PositionSize != nil && *n.PositionSize == 0 && n.MarketPosition == "flat"

	// Exit-strategy mapping: strategies emitting exit_stop/exit_limit mean
	// the same thing as explicit SL/TP prices.
	if n.StopLossPrice == nil && n.ExitStop != nil {
		n.StopLossPrice = n.ExitStop
	}

	dir := directionHint(n)
	for level := 1; level <= MaxTPLevels; level++ {
		n.TakeProfits[level-1] = lookupFloat(payload, sub, tpAliases(level, dir), fmt.Sprintf("take_profit_%d", level))
	}
	if n.TakeProfitPrice == nil && n.ExitLimit != nil {
		n.TakeProfitPrice = n.ExitLimit
	}
	if n.TakeProfitPrice == nil && n.TakeProfits[0] != nil {
		n.TakeProfitPrice = n.TakeProfits[0]
	}

	n.PlotValues = collectPlotValues(payload, sub)

	n.Bull = resolveBool(payload, sub, "bull")
	n.Bear = resolveBool(payload, sub, "bear")
	n.BullExit = resolveBool(payload, sub, "bull_exit")
	n.BearExit = resolveBool(payload, sub, "bear_exit")
	n.ClosesPosition = resolveBool(payload, sub, "closes_position")

	if v, ok := payload["order_id"].(string); ok {
		n.OrderID = v
	}
	if v, ok := payload["order_comment"].(string); ok {
		n.OrderComment = v
	}
	n.Timestamp = parseTimestamp(payload["timestamp"])

	if n.Action == "" && n.OrderType == "" {
		applyIndicatorFallback(n, payload, sub)
	}
	if n.AlertType == "" {
		n.AlertType = Classify(n)
	}
	return n
}

// isPlaceholder reports whether the value is an unexpanded TradingView
// template, e.g. "{{strategy.order.action}}".
func isPlaceholder(v string) bool {
	return strings.Contains(v, "{{")
}

func lookup(payload, sub map[string]any, cands []candidate) (any, bool) {
	for _, c := range cands {
		m := payload
		if c.from == fromSub {
			m = sub
		}
		if v, ok := m[c.key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// resolveTag resolves a lowercase string tag (action, order_type, market
// position); placeholders and non-strings count as absent.
func resolveTag(payload, sub map[string]any, cands []candidate) string {
	for _, c := range cands {
		m := payload
		if c.from == fromSub {
			m = sub
		}
		v, ok := m[c.key].(string)
		if ok && v != "" && !isPlaceholder(v) {
			return strings.ToLower(v)
		}
	}
	return ""
}

func resolveFloat(payload, sub map[string]any, field string) *float64 {
	return lookupFloat(payload, sub, numericAliases[field], field)
}

func lookupFloat(payload, sub map[string]any, cands []candidate, field string) *float64 {
	v, ok := lookup(payload, sub, cands)
	if !ok {
		return nil
	}
	return parseFloat(v, field)
}

func resolveInt(payload, sub map[string]any, field string) *int {
	f := resolveFloat(payload, sub, field)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

func resolveBool(payload, sub map[string]any, field string) *bool {
	v, ok := lookup(payload, sub, boolAliases[field])
	if !ok {
		return nil
	}
	return parseBool(v)
}

// parseFloat coerces a payload value to float64. Absence, empty strings and
// unparsable values all map to nil; a parse failure is logged and skipped,
// never fatal.
func parseFloat(v any, field string) *float64 {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		f := val
		return &f
	case float32:
		f := float64(val)
		return &f
	case int:
		f := float64(val)
		return &f
	case int64:
		f := float64(val)
		return &f
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" || isPlaceholder(trimmed) {
			return nil
		}
		lower := strings.ToLower(trimmed)
		if lower == "null" || lower == "none" || lower == "nan" {
			return nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			logger.Warnf("alert: unparsable numeric value %q for field %s", val, field)
			return nil
		}
		return &f
	default:
		logger.Warnf("alert: unsupported value type %T for field %s", v, field)
		return nil
	}
}

func parseBool(v any) *bool {
	switch val := v.(type) {
	case bool:
		b := val
		return &b
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			b := true
			return &b
		case "false", "0", "no":
			b := false
			return &b
		}
		return nil
	case float64:
		b := val != 0
		return &b
	default:
		return nil
	}
}

// collectPlotValues gathers every plot_N field (N all digits) into a map
// keyed by the original field name; outer payload wins over the sub-message.
func collectPlotValues(payload, sub map[string]any) map[string]float64 {
	plots := map[string]float64{}
	gather := func(m map[string]any) {
		for key, value := range m {
			if !isPlotKey(key) {
				continue
			}
			if _, seen := plots[key]; seen {
				continue
			}
			if f := parseFloat(value, key); f != nil {
				plots[key] = *f
			}
		}
	}
	gather(payload)
	gather(sub)
	if len(plots) == 0 {
		return nil
	}
	return plots
}

func isPlotKey(key string) bool {
	const prefix = "plot_"
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return false
	}
	for _, r := range key[len(prefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// directionHint guesses the trade direction for alias tables that are
// direction-gated; empty when nothing in the payload says.
func directionHint(n *Normalized) string {
	switch {
	case strings.Contains(n.OrderType, "long"):
		return "long"
	case strings.Contains(n.OrderType, "short"):
		return "short"
	case n.MarketPosition == "long" || n.MarketPosition == "short":
		return n.MarketPosition
	case n.Action == "buy":
		return "long"
	case n.Action == "sell":
		return "short"
	}
	return ""
}

func parseTimestamp(v any) time.Time {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" || isPlaceholder(trimmed) {
			return time.Time{}
		}
		layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts.UTC()
			}
		}
		logger.Warnf("alert: unparsable timestamp %q", val)
	case float64:
		if val > 0 {
			sec := int64(val)
			if sec > 1e12 { // milliseconds
				return time.UnixMilli(sec).UTC()
			}
			return time.Unix(sec, 0).UTC()
		}
	}
	return time.Time{}
}
