package audio

import (
	"fmt"
	"math"
	"time"
)

// PerceptualToLinear maps a slider value in 0..100 to a linear gain in 0..1
// along a logarithmic loudness curve: linear = -ln(1-v)/ln(100), v = value/100.
// Values above 99 saturate to 1.
func PerceptualToLinear(value float64) float64 {
	v := value / 100
	if v <= 0 {
		return 0
	}
	if v > 0.99 {
		return 1
	}
	return -math.Log(1-v) / math.Log(100)
}

// FormatTimestamp renders "mm:ss / mm:ss" for a position and a duration.
func FormatTimestamp(position, duration time.Duration) string {
	return fmt.Sprintf("%s / %s", formatClock(position), formatClock(duration))
}

func formatClock(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
