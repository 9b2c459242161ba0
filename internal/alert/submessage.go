package alert

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// TradingView forwards strategy parameters inside an order_alert_message
// string that is frequently mangled by the alert template editor: missing
// outer braces, stray leading/trailing quotes, doubled or trailing commas.
// ParseSubMessage recovers what it can and never fails; total garbage
// yields an empty map.

var (
	kvPairPattern    = regexp.MustCompile(`"([^"]+)"\s*:\s*"?([^",}]+)"?`)
	trailingCommaRe  = regexp.MustCompile(`,\s*}`)
	repeatedCommaRe  = regexp.MustCompile(`,{2,}`)
	numericLiteralRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// ParseSubMessage parses the embedded alert-message string into a key/value
// map. Attempts, in order: as-is JSON, repaired JSON, raw key/value
// extraction. Returns an empty map when nothing is recoverable.
func ParseSubMessage(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	if m, ok := decodeObject(raw); ok {
		return m
	}
	if m, ok := decodeObject(repairSubMessage(raw)); ok {
		return m
	}
	return extractPairs(raw)
}

// SerializeSubMessage is the structural inverse of ParseSubMessage for
// well-formed inputs. An empty map serializes to "".
func SerializeSubMessage(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	data, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeObject(s string) (map[string]any, bool) {
	if !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return m, true
}

func repairSubMessage(raw string) string {
	cleaned := strings.TrimSpace(raw)

	// Stray quote before the object, e.g. `"{"key": 1}` or `""key": 1`.
	if strings.HasPrefix(cleaned, `"`) && !strings.HasPrefix(cleaned, `"{`) {
		cleaned = cleaned[1:]
	}
	for strings.HasPrefix(cleaned, `""`) {
		cleaned = cleaned[1:]
	}
	if strings.HasSuffix(cleaned, `",`) || (strings.HasSuffix(cleaned, `"`) && !strings.HasSuffix(cleaned, `}"`)) {
		cleaned = strings.TrimRight(cleaned, `",`)
	}

	cleaned = repeatedCommaRe.ReplaceAllString(cleaned, ",")

	if !strings.HasPrefix(cleaned, "{") {
		cleaned = "{" + cleaned
	}
	if !strings.HasSuffix(cleaned, "}") {
		cleaned = strings.TrimRight(cleaned, ",") + "}"
	}
	return trailingCommaRe.ReplaceAllString(cleaned, "}")
}

// extractPairs scrapes "key": value pairs straight out of the text, coercing
// each value by lexical inspection. Pairs the pattern cannot read are
// skipped rather than failing the whole message.
func extractPairs(raw string) map[string]any {
	params := map[string]any{}
	for _, match := range kvPairPattern.FindAllStringSubmatch(raw, -1) {
		key := match[1]
		value := strings.TrimSpace(match[2])
		switch {
		case strings.EqualFold(value, "true"):
			params[key] = true
		case strings.EqualFold(value, "false"):
			params[key] = false
		case numericLiteralRe.MatchString(value):
			num, err := strconv.ParseFloat(value, 64)
			if err != nil {
				params[key] = value
				continue
			}
			params[key] = num
		default:
			params[key] = value
		}
	}
	return params
}
