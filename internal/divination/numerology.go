// Package divination holds the deterministic numerology and astrology
// primitives used to build prompts and fallback readings.
package divination

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ReductionMethod describes how core numbers are derived.
const ReductionMethod = "Pythagorean reduction with master numbers 11/22/33 preserved"

// ErrInvalidBirthDate is returned for calendar input that cannot be parsed.
var ErrInvalidBirthDate = errors.New("divination: invalid birth date")

var letterValues = map[rune]int{
	'A': 1, 'J': 1, 'S': 1,
	'B': 2, 'K': 2, 'T': 2,
	'C': 3, 'L': 3, 'U': 3,
	'D': 4, 'M': 4, 'V': 4,
	'E': 5, 'N': 5, 'W': 5,
	'F': 6, 'O': 6, 'X': 6,
	'G': 7, 'P': 7, 'Y': 7,
	'H': 8, 'Q': 8, 'Z': 8,
	'I': 9, 'R': 9,
}

// IsMasterNumber reports whether n is one of the preserved totals 11, 22, 33.
func IsMasterNumber(n int) bool {
	return n == 11 || n == 22 || n == 33
}

// Reduce sums digits until a single digit or a master number remains.
func Reduce(n int) int {
	if n < 0 {
		n = -n
	}
	for n > 9 && !IsMasterNumber(n) {
		sum := 0
		for n > 0 {
			sum += n % 10
			n /= 10
		}
		n = sum
	}
	return n
}

// LetterValue maps an uppercase Latin letter to its Pythagorean value, or 0.
func LetterValue(r rune) int {
	return letterValues[r]
}

func isVowel(r rune) bool {
	switch r {
	case 'A', 'E', 'I', 'O', 'U', 'Y':
		return true
	}
	return false
}

// NormalizeName folds accents and keeps only uppercase A-Z.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(folded) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NameNumbers holds the raw and reduced name-derived numbers.
type NameNumbers struct {
	Normalized     string
	DestinyRaw     int
	Destiny        int
	SoulRaw        int
	Soul           int
	PersonalityRaw int
	Personality    int
}

// NumbersFromName computes destiny (all letters), soul urge (vowels) and
// personality (consonants). A name without vowels or consonants yields 0
// for that number.
func NumbersFromName(fullName string) NameNumbers {
	out := NameNumbers{Normalized: NormalizeName(fullName)}
	for _, r := range out.Normalized {
		v := LetterValue(r)
		out.DestinyRaw += v
		if isVowel(r) {
			out.SoulRaw += v
		} else {
			out.PersonalityRaw += v
		}
	}
	out.Destiny = Reduce(out.DestinyRaw)
	out.Soul = Reduce(out.SoulRaw)
	out.Personality = Reduce(out.PersonalityRaw)
	return out
}

// LifePath sums the digits of YYYYMMDD and reduces the total.
func LifePath(birth time.Time) (raw, reduced int) {
	for _, r := range birth.Format("20060102") {
		raw += int(r - '0')
	}
	return raw, Reduce(raw)
}

// KarmicLessons lists the digits 1-9 absent from the name's letter values.
func KarmicLessons(fullName string) []int {
	present := make(map[int]bool, 9)
	for _, r := range NormalizeName(fullName) {
		present[LetterValue(r)] = true
	}
	lessons := make([]int, 0, 9)
	for n := 1; n <= 9; n++ {
		if !present[n] {
			lessons = append(lessons, n)
		}
	}
	return lessons
}

// ParseBirthDate parses YYYY-MM-DD and rejects dates in the future.
func ParseBirthDate(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBirthDate, value)
	}
	if t.After(time.Now()) {
		return time.Time{}, fmt.Errorf("%w: %q is in the future", ErrInvalidBirthDate, value)
	}
	return t, nil
}

// NumerologyChart is the full set of helper-derived numbers for a person.
type NumerologyChart struct {
	LifePathRaw   int
	LifePath      int
	Name          NameNumbers
	KarmicLessons []int
	MasterNumbers []int
	LuckyNumbers  []int
	Method        string
}

// ComputeNumerology derives every core number from a name and birth date.
func ComputeNumerology(fullName string, birthDate time.Time) NumerologyChart {
	raw, lifePath := LifePath(birthDate)
	name := NumbersFromName(fullName)
	chart := NumerologyChart{
		LifePathRaw:   raw,
		LifePath:      lifePath,
		Name:          name,
		KarmicLessons: KarmicLessons(fullName),
		MasterNumbers: []int{},
		LuckyNumbers:  []int{},
		Method:        ReductionMethod,
	}
	seen := make(map[int]bool, 4)
	for _, n := range []int{lifePath, name.Destiny, name.Soul, name.Personality} {
		if n == 0 || seen[n] {
			continue
		}
		seen[n] = true
		chart.LuckyNumbers = append(chart.LuckyNumbers, n)
		if IsMasterNumber(n) {
			chart.MasterNumbers = append(chart.MasterNumbers, n)
		}
	}
	return chart
}
