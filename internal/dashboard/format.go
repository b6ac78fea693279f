package dashboard

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/runesync/internal/models"
)

// FormatPrice abbreviates a price the way the game does: full number below
// 1K, whole thousands with K, millions with one decimal and M.
func FormatPrice(price int64) string {
	switch {
	case price >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(price)/1_000_000)
	case price >= 1_000:
		return fmt.Sprintf("%.0fK", float64(price)/1_000)
	default:
		return fmt.Sprintf("%d", price)
	}
}

// FormatPercent renders a percentage with one decimal and an explicit sign
// for non-negative values, e.g. "+20.0%".
func FormatPercent(p decimal.Decimal) string {
	rounded := p.Round(1)
	if rounded.IsNegative() {
		return rounded.StringFixed(1) + "%"
	}
	return "+" + rounded.Abs().StringFixed(1) + "%"
}

// FormatChange is FormatPercent for an optional change; nil renders "N/A".
func FormatChange(c *models.ChangeStat) string {
	if c == nil {
		return "N/A"
	}
	return FormatPercent(c.PercentDelta)
}

// ProperTitle title-cases each word without capitalising letters after an
// apostrophe ("Ava's Assembler", not "Ava'S Assembler").
func ProperTitle(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		head, tail, found := strings.Cut(word, "'")
		word = capitalize(head)
		if found {
			word += "'" + strings.ToLower(tail)
		}
		words[i] = word
	}
	return strings.Join(words, " ")
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	r := []rune(strings.ToLower(word))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
