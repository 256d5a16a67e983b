package karma

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EmojiThreshold maps a level threshold to a display symbol. A level shows
// the symbol of the highest threshold at or below it.
type EmojiThreshold struct {
	Threshold int
	Symbol    string
}

// Levels derives levels and display symbols from karma totals. Pure and
// deterministic: no state beyond the configured interval and symbol ladder.
type Levels struct {
	interval int64
	ladder   []EmojiThreshold
}

// DefaultEmojiLadder mirrors the classic star progression.
const DefaultEmojiLadder = "0:⭐,1:🌟,2:✨,3:💫,4:☄️"

func NewLevels(interval int64, ladder []EmojiThreshold) (*Levels, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("level interval must be positive, got %d", interval)
	}
	if len(ladder) == 0 {
		return nil, fmt.Errorf("emoji ladder must not be empty")
	}
	sorted := make([]EmojiThreshold, len(ladder))
	copy(sorted, ladder)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	return &Levels{interval: interval, ladder: sorted}, nil
}

// Level maps a total to its tier: max(0, total/interval). Negative totals
// are level 0.
func (l *Levels) Level(total int64) int {
	if total < 0 {
		return 0
	}
	return int(total / l.interval)
}

// DidLevelUp reports whether the new total reached a higher tier.
func (l *Levels) DidLevelUp(oldTotal, newTotal int64) bool {
	return l.Level(newTotal) > l.Level(oldTotal)
}

// Emoji returns the symbol of the highest ladder threshold <= level. Levels
// below the lowest threshold show the first symbol.
func (l *Levels) Emoji(level int) string {
	symbol := l.ladder[0].Symbol
	for _, e := range l.ladder {
		if e.Threshold > level {
			break
		}
		symbol = e.Symbol
	}
	return symbol
}

// ParseEmojiLadder parses "threshold:symbol" pairs separated by commas,
// e.g. "0:⭐,5:🌟". Order in the input is irrelevant; thresholds must be
// unique and non-negative.
func ParseEmojiLadder(s string) ([]EmojiThreshold, error) {
	parts := strings.Split(s, ",")
	ladder := make([]EmojiThreshold, 0, len(parts))
	seen := make(map[int]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		threshold, symbol, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid emoji ladder entry %q, want threshold:symbol", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(threshold))
		if err != nil {
			return nil, fmt.Errorf("invalid emoji ladder threshold %q: %w", threshold, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("emoji ladder threshold must be non-negative, got %d", n)
		}
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate emoji ladder threshold %d", n)
		}
		seen[n] = struct{}{}
		ladder = append(ladder, EmojiThreshold{Threshold: n, Symbol: strings.TrimSpace(symbol)})
	}
	if len(ladder) == 0 {
		return nil, fmt.Errorf("emoji ladder is empty")
	}
	return ladder, nil
}
