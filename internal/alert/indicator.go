package alert

import (
	"strconv"

	"tradehook/internal/logger"
)

// Indicator fallback: applied only when neither action nor order_type could
// be resolved from the payload. Three tiers, first productive one wins:
// an explicit signal_type tag, bull/bear boolean flags, then a numeric
// plot_0 direction value.
func applyIndicatorFallback(n *Normalized, payload, sub map[string]any) {
	if st := resolveTag(payload, sub, signalTypeAliases); st != "" {
		if applySignalType(n, payload, st) {
			return
		}
	}
	if applyBoolSignals(n, payload) {
		return
	}
	applyPlotSignals(n, payload)
}

func applySignalType(n *Normalized, payload map[string]any, signalType string) bool {
	switch signalType {
	case "bull_entry":
		markEntry(n, payload, "long")
	case "bear_entry":
		markEntry(n, payload, "short")
	case "tp1", "tp2", "tp3", "tp4", "tp5":
		level, _ := strconv.Atoi(signalType[2:])
		tp, ok := TPForLevel(level)
		if !ok {
			return false
		}
		dir := exitDirection(n)
		n.AlertType = tp
		n.OrderType = "reduce_" + dir
		n.Action = closingAction(dir)
		fillExitPrice(n, payload)
		if n.TPCount != nil && level >= *n.TPCount {
			n.ClosesPosition = Bool(true)
		}
	case "sl", "sl1", "sl2", "sl3", "stop_loss", "stoploss":
		dir := exitDirection(n)
		n.AlertType = TypeStopLoss
		n.OrderType = "exit_" + dir
		n.Action = closingAction(dir)
		// A stop-out takes the whole position unless config says the
		// symbol scales out over several SL levels.
		n.ClosesPosition = Bool(true)
		fillExitPrice(n, payload)
	case "exit", "close", "flat":
		dir := exitDirection(n)
		n.AlertType = TypeExit
		n.OrderType = "exit_" + dir
		n.Action = closingAction(dir)
		n.ClosesPosition = Bool(true)
		fillExitPrice(n, payload)
	default:
		return false
	}
	n.SignalType = signalType
	return true
}

func applyBoolSignals(n *Normalized, payload map[string]any) bool {
	switch {
	case n.Bull != nil && *n.Bull:
		markEntry(n, payload, "long")
	case n.Bear != nil && *n.Bear:
		markEntry(n, payload, "short")
	case n.BullExit != nil && *n.BullExit:
		markBoolExit(n, payload, "long")
	case n.BearExit != nil && *n.BearExit:
		markBoolExit(n, payload, "short")
	default:
		return false
	}
	return true
}

// applyPlotSignals reads the plot_0 direction convention used by
// plot-only indicators: 1 = long entry, -1 = short entry, 0 = flat.
// plot_1 carries the price (falling back to close), plot_2 the
// take-profit and plot_3 the stop-loss; already-resolved fields are
// left alone.
func applyPlotSignals(n *Normalized, payload map[string]any) {
	v, ok := n.PlotValues["plot_0"]
	if !ok {
		return
	}
	switch v {
	case 1:
		n.Action = "buy"
		n.OrderType = "enter_long"
		n.AlertType = TypeEntry
		if n.MarketPosition == "" {
			n.MarketPosition = "long"
		}
	case -1:
		n.Action = "sell"
		n.OrderType = "enter_short"
		n.AlertType = TypeEntry
		if n.MarketPosition == "" {
			n.MarketPosition = "short"
		}
	case 0:
		n.AlertType = TypeExit
		if n.MarketPosition == "" {
			n.MarketPosition = "flat"
		}
	default:
		return
	}
	if n.OrderPrice == nil {
		if p, ok := n.PlotValues["plot_1"]; ok {
			n.OrderPrice = Float(p)
		} else if c := parseFloat(payload["close"], "close"); c != nil {
			n.OrderPrice = c
		}
	}
	if n.TakeProfitPrice == nil {
		if p, ok := n.PlotValues["plot_2"]; ok {
			n.TakeProfitPrice = Float(p)
		}
	}
	if n.StopLossPrice == nil {
		if p, ok := n.PlotValues["plot_3"]; ok {
			n.StopLossPrice = Float(p)
		}
	}
}

func markEntry(n *Normalized, payload map[string]any, dir string) {
	n.AlertType = TypeEntry
	n.OrderType = "enter_" + dir
	if dir == "long" {
		n.Action = "buy"
	} else {
		n.Action = "sell"
	}
	if n.MarketPosition == "" {
		n.MarketPosition = dir
	}
	if n.OrderPrice == nil {
		if n.EntryPrice != nil {
			n.OrderPrice = n.EntryPrice
		} else if c := parseFloat(payload["close"], "close"); c != nil {
			n.OrderPrice = c
		}
	}
}

func markBoolExit(n *Normalized, payload map[string]any, dir string) {
	n.AlertType = TypeExit
	n.OrderType = "exit_" + dir
	n.Action = closingAction(dir)
	n.ClosesPosition = Bool(true)
	if n.MarketPosition == "" {
		n.MarketPosition = dir
	}
	fillExitPrice(n, payload)
}

// exitDirection resolves which side an indicator exit applies to,
// defaulting to long when the payload does not say.
func exitDirection(n *Normalized) string {
	switch n.MarketPosition {
	case "long", "short":
		return n.MarketPosition
	}
	logger.Warnf("alert: indicator exit for %s without market_position, assuming long", n.Symbol)
	return "long"
}

func closingAction(dir string) string {
	if dir == "long" {
		return "sell"
	}
	return "buy"
}

func fillExitPrice(n *Normalized, payload map[string]any) {
	if n.OrderPrice != nil {
		return
	}
	if p := parseFloat(payload["exit_price"], "exit_price"); p != nil {
		n.OrderPrice = p
		return
	}
	if c := parseFloat(payload["close"], "close"); c != nil {
		n.OrderPrice = c
	}
}
