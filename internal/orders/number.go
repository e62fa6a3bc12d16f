package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const numberPrefix = "ORD"

// NewNumber generates a globally unique, human-readable order number,
// e.g. ORD-20260830-3FA8C1.
func NewNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return numberPrefix + "-" + now.Format("20060102") + "-" + suffix
}
