package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var xpPrinter = message.NewPrinter(language.English)

// FormatXP renders an XP total with thousands separators for display
// (e.g., 12345 → "12,345 XP").
func FormatXP(xp int64) string {
	return xpPrinter.Sprintf("%d XP", xp)
}
