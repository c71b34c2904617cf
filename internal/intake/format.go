package intake

import (
	"fmt"
	"math"
)

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// FormatBytes renders a size with a 1024 ratio and one decimal,
// e.g. 512 -> "512 B", 1536 -> "1.5 KB". TB is the largest unit.
func FormatBytes(n int64) string {
	const thresh = 1024
	if n > -thresh && n < thresh {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n)
	u := -1
	for {
		value /= thresh
		u++
		if math.Abs(value) < thresh || u >= len(byteUnits)-1 {
			break
		}
	}
	return fmt.Sprintf("%.1f %s", value, byteUnits[u])
}
