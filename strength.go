package autosubmit

import (
	"math"
	"unicode"
)

// StrengthLevel is the coarse verdict of the strength meter.
type StrengthLevel uint8

const (
	StrengthVeryWeak StrengthLevel = iota
	StrengthWeak
	StrengthFair
	StrengthStrong
	StrengthVeryStrong
)

func (l StrengthLevel) String() string {
	switch l {
	case StrengthVeryWeak:
		return "very_weak"
	case StrengthWeak:
		return "weak"
	case StrengthFair:
		return "fair"
	case StrengthStrong:
		return "strong"
	case StrengthVeryStrong:
		return "very_strong"
	default:
		return "unknown"
	}
}

// StrengthReport describes one password's composition. It is advisory
// feedback for a password-change or enrollment UI; the engine itself
// never gates validation on strength.
type StrengthReport struct {
	Score        int
	Length       int
	HasLowercase bool
	HasUppercase bool
	HasDigits    bool
	HasSpecial   bool
	// Entropy is the naive charset estimate in bits, length * log2 of
	// the combined character set size.
	Entropy     float64
	Level       StrengthLevel
	Suggestions []string
}

// CheckStrength analyzes a candidate password. The input is read only
// and never stored; callers holding the password in a wipeable buffer
// keep ownership.
func CheckStrength(password []byte) StrengthReport {
	r := StrengthReport{Level: StrengthVeryWeak}
	if len(password) == 0 {
		return r
	}

	for _, c := range string(password) {
		r.Length++
		switch {
		case unicode.IsLower(c):
			r.HasLowercase = true
		case unicode.IsUpper(c):
			r.HasUppercase = true
		case unicode.IsDigit(c):
			r.HasDigits = true
		default:
			r.HasSpecial = true
		}
	}

	if r.Length >= 8 {
		r.Score++
	}
	if r.Length >= 12 {
		r.Score++
	}
	if r.HasLowercase {
		r.Score++
	}
	if r.HasUppercase {
		r.Score++
	}
	if r.HasDigits {
		r.Score++
	}
	if r.HasSpecial {
		r.Score++
	}

	charset := 0
	if r.HasLowercase {
		charset += 26
	}
	if r.HasUppercase {
		charset += 26
	}
	if r.HasDigits {
		charset += 10
	}
	if r.HasSpecial {
		charset += 32
	}
	if charset > 0 {
		r.Entropy = float64(r.Length) * math.Log2(float64(charset))
	}

	switch {
	case r.Score <= 2:
		r.Level = StrengthVeryWeak
	case r.Score <= 3:
		r.Level = StrengthWeak
	case r.Score <= 4:
		r.Level = StrengthFair
	case r.Score <= 5:
		r.Level = StrengthStrong
	default:
		r.Level = StrengthVeryStrong
	}

	if r.Length < 8 {
		r.Suggestions = append(r.Suggestions, "Use at least 8 characters")
	}
	if !r.HasUppercase {
		r.Suggestions = append(r.Suggestions, "Add uppercase letters")
	}
	if !r.HasDigits {
		r.Suggestions = append(r.Suggestions, "Add numbers")
	}
	if !r.HasSpecial {
		r.Suggestions = append(r.Suggestions, "Add special characters")
	}

	return r
}
