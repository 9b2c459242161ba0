package tradegroup

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewGroupID mints a trade group id of the form
// SYMBOL-DIRECTION-YYYYMMDDHHMMSS-XXXXXXXX. The timestamp part keeps ids
// sortable by eye; the hex suffix keeps them unique within a second.
func NewGroupID(symbol, direction string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToUpper(symbol),
		strings.ToUpper(direction),
		at.UTC().Format("20060102150405"),
		suffix,
	)
}
