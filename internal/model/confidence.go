package model

// ConfidenceLevel is a coarse presentation band for a confidence score.
type ConfidenceLevel string

const (
	LevelHigh   ConfidenceLevel = "high"
	LevelMedium ConfidenceLevel = "medium"
	LevelLow    ConfidenceLevel = "low"
	LevelNone   ConfidenceLevel = "none"
)

// LevelFor maps a 0-100 confidence to its band.
func LevelFor(confidence int) ConfidenceLevel {
	switch {
	case confidence >= 85:
		return LevelHigh
	case confidence >= 70:
		return LevelMedium
	case confidence >= 50:
		return LevelLow
	default:
		return LevelNone
	}
}

// Icon returns the marker used when printing the band in a terminal.
func (l ConfidenceLevel) Icon() string {
	switch l {
	case LevelHigh:
		return "✅"
	case LevelMedium:
		return "⚠️"
	case LevelLow:
		return "🟡"
	default:
		return "❌"
	}
}
