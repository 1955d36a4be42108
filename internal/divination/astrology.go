package divination

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChartNote is attached to every helper-derived chart.
const ChartNote = "Approximate chart based on simplified rules; not a full ephemeris."

// ErrInvalidBirthTime is returned for a birth time that is not HH:MM.
var ErrInvalidBirthTime = errors.New("divination: invalid birth time")

// Signs lists the zodiac in order starting at Aries.
var Signs = [12]string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

// Elements in zodiac order repeat Fire, Earth, Air, Water.
var Elements = [4]string{"Fire", "Earth", "Air", "Water"}

var modalities = [3]string{"Cardinal", "Fixed", "Mutable"}

// signStart is the first day of each sign, indexed like Signs.
var signStart = [12]struct{ month, day int }{
	{3, 21}, {4, 20}, {5, 21}, {6, 21}, {7, 23}, {8, 23},
	{9, 23}, {10, 23}, {11, 22}, {12, 22}, {1, 20}, {2, 19},
}

// SunSign returns the tropical sun sign for a calendar date.
func SunSign(date time.Time) string {
	month, day := int(date.Month()), date.Day()
	for i := range Signs {
		start := signStart[i]
		next := signStart[(i+1)%12]
		if (month == start.month && day >= start.day) || (month == next.month && day < next.day) {
			return Signs[i]
		}
	}
	return Signs[11]
}

// SignIndex returns the zodiac index of name, or -1.
func SignIndex(name string) int {
	for i, s := range Signs {
		if strings.EqualFold(s, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// ElementOf returns the element of a sign, or "" when the sign is unknown.
func ElementOf(sign string) string {
	idx := SignIndex(sign)
	if idx < 0 {
		return ""
	}
	return Elements[idx%4]
}

// ModalityOf returns the modality of a sign, or "" when the sign is unknown.
func ModalityOf(sign string) string {
	idx := SignIndex(sign)
	if idx < 0 {
		return ""
	}
	return modalities[idx%3]
}

// MoonAndRising rotates the zodiac by birth hour. Hour defaults to noon.
func MoonAndRising(hour int, known bool) (moon, rising string) {
	if !known {
		hour = 12
	}
	hour = ((hour % 24) + 24) % 24
	return Signs[(hour/2)%12], Signs[(hour/2+3)%12]
}

// ParseBirthTime parses HH:MM. An empty value reports known=false.
func ParseBirthTime(value string) (hour int, known bool, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, perr := time.Parse(layout, value); perr == nil {
			return t.Hour(), true, nil
		}
	}
	return 0, false, fmt.Errorf("%w: %q", ErrInvalidBirthTime, value)
}

// BasicChart is the helper-derived placement set.
type BasicChart struct {
	SunSign    string
	MoonSign   string
	RisingSign string
	Element    string
	Modality   string
	BirthPlace string
	TimeKnown  bool
	Note       string
}

// ComputeChart derives sun, moon and rising signs from birth details.
func ComputeChart(birthDate time.Time, birthTime, birthPlace string) (BasicChart, error) {
	hour, known, err := ParseBirthTime(birthTime)
	if err != nil {
		return BasicChart{}, err
	}
	sun := SunSign(birthDate)
	moon, rising := MoonAndRising(hour, known)
	return BasicChart{
		SunSign:    sun,
		MoonSign:   moon,
		RisingSign: rising,
		Element:    ElementOf(sun),
		Modality:   ModalityOf(sun),
		BirthPlace: strings.TrimSpace(birthPlace),
		TimeKnown:  known,
		Note:       ChartNote,
	}, nil
}
