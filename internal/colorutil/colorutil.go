package colorutil

import (
	"github.com/fatih/color"
)

var (
	colorCritical = color.New(color.FgRed, color.Bold)
	colorHigh     = color.New(color.FgYellow, color.Bold)
	colorMedium   = color.New(color.FgYellow)
	colorLow      = color.New(color.FgGreen)
	colorError    = color.New(color.FgRed)
)

// ApplyNoColor disables color output
func ApplyNoColor() {
	color.NoColor = true
}

// ColorizeSeverity returns the severity string with appropriate color
func ColorizeSeverity(severity string) string {
	switch severity {
	case "critical":
		return colorCritical.Sprint(severity)
	case "high":
		return colorHigh.Sprint(severity)
	case "medium":
		return colorMedium.Sprint(severity)
	case "low", "info":
		return colorLow.Sprint(severity)
	default:
		return severity
	}
}

// ColorizeError returns an error message tinted for console output
func ColorizeError(msg string) string {
	return colorError.Sprint(msg)
}
