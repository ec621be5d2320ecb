package cli

import (
	"fmt"
	"strings"
)

// ─── XP Bar ─────────────────────────────────────────────────────────────────
// Renders level progress for `show`:
//   [=============>................]  45% │ 45 / 100 XP

const barWidth = 30 // Characters for the progress bar

func xpBar(current, toNext int64) string {
	pct := 100.0
	if toNext > 0 {
		pct = float64(current) / float64(toNext) * 100
	}
	return fmt.Sprintf("%s %3.0f%% │ %d / %d XP", renderBar(pct), min(max(pct, 0), 100), current, toNext)
}

// renderBar draws [=====>.....] for pct in [0, 100].
func renderBar(pct float64) string {
	pct = min(max(pct, 0), 100)

	filled := min(int(pct/100*float64(barWidth)), barWidth)
	empty := barWidth - filled

	var bar string
	switch {
	case filled == barWidth:
		bar = strings.Repeat("=", filled)
	case filled > 0:
		bar = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	default:
		bar = strings.Repeat(".", barWidth)
	}
	return "[" + bar + "]"
}

// statBar draws a stat value against its cap.
func statBar(value, maxValue int) string {
	if maxValue <= 0 {
		return renderBar(0)
	}
	return renderBar(float64(value) / float64(maxValue) * 100)
}
