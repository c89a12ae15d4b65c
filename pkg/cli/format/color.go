// Package format holds the terminal styling shared by tokenctl commands.
package format

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
)

var (
	SuccessColor = color.New(color.FgGreen, color.Bold)
	WarningColor = color.New(color.FgYellow, color.Bold)
	ErrorColor   = color.New(color.FgRed, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	LabelColor   = color.New(color.FgCyan, color.Bold)
	DimColor     = color.New(color.FgHiBlack)
)

func init() {
	// TOKENVAULT_NO_COLOR mirrors NO_COLOR, which fatih/color already honours
	if _, noColor := os.LookupEnv("TOKENVAULT_NO_COLOR"); noColor {
		color.NoColor = true
	}
}

// EnableColor enables or disables colored output globally
func EnableColor(enable bool) {
	color.NoColor = !enable
}

// IsColorEnabled returns whether colored output is enabled
func IsColorEnabled() bool {
	return !color.NoColor
}

// Success formats a message as a success (green)
func Success(format string, a ...interface{}) string {
	return SuccessColor.Sprintf(format, a...)
}

// Warning formats a message as a warning (yellow)
func Warning(format string, a ...interface{}) string {
	return WarningColor.Sprintf(format, a...)
}

// Error formats a message as an error (red)
func Error(format string, a ...interface{}) string {
	return ErrorColor.Sprintf(format, a...)
}

// Info formats a message as info (cyan)
func Info(format string, a ...interface{}) string {
	return InfoColor.Sprintf(format, a...)
}

// Dim formats a message as dimmed
func Dim(format string, a ...interface{}) string {
	return DimColor.Sprintf(format, a...)
}

// StatusSymbol returns a colorized status symbol
func StatusSymbol(success bool) string {
	if success {
		return SuccessColor.Sprint("✓")
	}
	return ErrorColor.Sprint("✗")
}

// Label formats a key and value with a label style
func Label(key, value string) string {
	return fmt.Sprintf("%s %s", LabelColor.Sprint(key+":"), value)
}

// Timestamp renders t in RFC3339, or "never" when t is nil.
func Timestamp(t *time.Time) string {
	if t == nil {
		return Dim("never")
	}
	return t.Local().Format(time.RFC3339)
}

// Remaining renders the time left until t, rounded to seconds.
func Remaining(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	d := t.Sub(now).Round(time.Second)
	if d <= 0 {
		return Error("expired")
	}
	return d.String()
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
