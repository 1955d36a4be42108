package canonical

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Percent is a lenient score. It accepts 72, 0.72, "72%", "0.72" or null.
// Bare values in [0,1] are read as fractions; an explicit "%" suffix is not.
type Percent struct {
	Value float64
	Set   bool
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	*p = Percent{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*p = ParsePercent(s)
	case '{', '[', 't', 'f':
		return nil
	default:
		v, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return nil
		}
		*p = fromNumber(v, false)
	}
	return nil
}

// ParsePercent reads a percentage string such as "65%", " 0.4 " or "N/A".
func ParsePercent(s string) Percent {
	s = strings.TrimSpace(s)
	explicit := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Percent{}
	}
	return fromNumber(v, explicit)
}

// Pct builds a set Percent from a number on the 0-100 scale.
func Pct(v float64) Percent {
	return fromNumber(v, true)
}

func fromNumber(v float64, explicit bool) Percent {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Percent{}
	}
	if !explicit && v > 0 && v <= 1 {
		v *= 100
	}
	return Percent{Value: clamp(v, 0, 100), Set: true}
}

// Positive reports whether p carries a usable nonzero score.
func (p Percent) Positive() bool {
	return p.Set && p.Value > 0
}

// Or returns the score, or def when p is unset or zero.
func (p Percent) Or(def float64) float64 {
	if p.Positive() {
		return p.Value
	}
	return def
}

// Text is a lenient string. Numbers and booleans are rendered, objects and
// arrays decode to "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	*t = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*t = Text(strings.TrimSpace(s))
		}
	case 't', 'f':
		*t = Text(string(b))
	case 'n', '{', '[':
	default:
		*t = Text(string(b))
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Known reports whether t carries information, treating placeholders such as
// "N/A" or "unknown" as empty.
func (t Text) Known() bool {
	switch strings.ToUpper(strings.TrimSpace(string(t))) {
	case "", "N/A", "NA", "NONE", "UNKNOWN", "NULL":
		return false
	}
	return true
}

// Lower returns the trimmed lowercase value.
func (t Text) Lower() string {
	return strings.ToLower(strings.TrimSpace(string(t)))
}

// Flag is a lenient boolean accepting true, "true", "yes" or 1.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	var t Text
	_ = t.UnmarshalJSON(b)
	switch t.Lower() {
	case "true", "yes", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// TextList accepts a list of strings, a list of {"name": ...} objects, a
// single string, or anything else as empty.
type TextList []string

func (l *TextList) UnmarshalJSON(b []byte) error {
	*l = TextList{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var t Text
		_ = t.UnmarshalJSON(b)
		if t != "" {
			*l = TextList{string(t)}
		}
		return nil
	}
	if b[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		var t Text
		if len(item) > 0 && item[0] == '{' {
			var named struct {
				Name  Text `json:"name"`
				Title Text `json:"title"`
			}
			_ = decodeObject(item, &named)
			t = named.Name
			if t == "" {
				t = named.Title
			}
		} else {
			_ = t.UnmarshalJSON(item)
		}
		if t != "" {
			*l = append(*l, string(t))
		}
	}
	return nil
}

// decodeObject decodes b into v only when b is a JSON object; any other shape
// leaves v at its zero value.
func decodeObject(b []byte, v any) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	return json.Unmarshal(b, v)
}

// decodeArray decodes b into v only when b is a JSON array.
func decodeArray(b []byte, v any) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return nil
	}
	return json.Unmarshal(b, v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func average(values []float64, def float64) float64 {
	if len(values) == 0 {
		return def
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
