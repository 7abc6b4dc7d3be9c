package format

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Bytes renders a byte count with IEC units, e.g. "1.5 GiB".
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

// Percent renders a percentage with one decimal, e.g. "42.5%".
// NaN renders as "n/a".
func Percent(p float64) string {
	if math.IsNaN(p) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", p)
}

// Count renders an integer with thousands separators, e.g. "1,234".
func Count(n uint64) string {
	return humanize.Comma(int64(n))
}
