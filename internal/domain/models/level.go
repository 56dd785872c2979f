package models

import "fmt"

// LevelScore blends strength and confidence: 0.7*(strength/10) + 0.3*confidence.
func LevelScore(strength int, confidence float64) float64 {
	return 0.7*(float64(strength)/10.0) + 0.3*confidence
}

// DeriveLevel is the single source of the signal level band. Generator and
// classifier both call it so the two never disagree.
func DeriveLevel(strength int, confidence float64) SignalLevel {
	score := LevelScore(strength, confidence)
	switch {
	case score >= 0.9:
		return LevelExtreme
	case score >= 0.7:
		return LevelStrong
	case score >= 0.5:
		return LevelMedium
	case score >= 0.3:
		return LevelWeak
	default:
		return LevelVeryWeak
	}
}

// DeriveDescription renders the human text for a signal from its asset, type,
// strength, confidence and level.
func DeriveDescription(s *Signal) string {
	level := DeriveLevel(s.Strength, s.Confidence)
	tail := fmt.Sprintf("for %s with strength %d/10 and confidence %.2f", s.Asset, s.Strength, s.Confidence)
	switch s.Type {
	case SignalBuy, SignalSell:
		return fmt.Sprintf("Strong %s %s signal %s", level, s.Type, tail)
	case SignalHold:
		return "Neutral hold signal " + tail
	case SignalAlert:
		return fmt.Sprintf("%s alert signal %s", level, tail)
	default:
		return fmt.Sprintf("%s signal for %s", s.Type, s.Asset)
	}
}
