package alert

import "strings"

// Classify derives the alert's role from the normalized fields. Pure and
// total: always returns a value, UNKNOWN when nothing matches.
//
// Precedence, first match wins:
//  1. order_type carrying enter_/entry_ is an ENTRY.
//  2. order_comment markers (TP1/TP2/TP3, SL/STOP); the comment
//     outranks order_id when both carry signal.
//  3. order_id markers (1st/2nd/3rd Target, Stop Loss).
//  4. order_type reduce_ is a PARTIAL exit.
//  5. order_type exit_ is a full EXIT.
func Classify(n *Normalized) Type {
	orderType := strings.ToLower(n.OrderType)

	if strings.Contains(orderType, "enter_") || strings.Contains(orderType, "entry_") {
		return TypeEntry
	}

	if n.OrderComment != "" {
		comment := strings.ToUpper(n.OrderComment)
		switch {
		case strings.Contains(comment, "TP1"):
			return TypeTP1
		case strings.Contains(comment, "TP2"):
			return TypeTP2
		case strings.Contains(comment, "TP3"):
			return TypeTP3
		case strings.Contains(comment, "SL"), strings.Contains(comment, "STOP"):
			return TypeStopLoss
		}
	}

	if n.OrderID != "" {
		id := strings.ToLower(n.OrderID)
		switch {
		case strings.Contains(id, "1st target"):
			return TypeTP1
		case strings.Contains(id, "2nd target"):
			return TypeTP2
		case strings.Contains(id, "3rd target"):
			return TypeTP3
		case strings.Contains(id, "stop loss"):
			return TypeStopLoss
		}
	}

	if strings.Contains(orderType, "reduce_") {
		return TypePartial
	}
	if strings.Contains(orderType, "exit_") {
		return TypeExit
	}
	return TypeUnknown
}
