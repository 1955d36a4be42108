package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PalmVariant identifies which raw palm schema a model response follows.
type PalmVariant int

const (
	// PalmLegacy is the flat schema keyed by "lines" and "personality.traits".
	PalmLegacy PalmVariant = iota
	// PalmStructured is the schema keyed by "palm_lines".
	PalmStructured
)

func (v PalmVariant) String() string {
	if v == PalmStructured {
		return "structured"
	}
	return "legacy"
}

// PalmPayload is the tagged union of the two raw palm schemas. Exactly one of
// Legacy or Structured is non-nil, matching Variant.
type PalmPayload struct {
	Variant    PalmVariant
	Legacy     *LegacyPalm
	Structured *StructuredPalm
}

// DecodePalm detects the schema variant by its marker field and decodes obj
// into the matching payload type.
func DecodePalm(obj map[string]any) (PalmPayload, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return PalmPayload{}, fmt.Errorf("canonical: re-encode payload: %w", err)
	}
	if _, ok := obj["palm_lines"]; ok {
		var s StructuredPalm
		if err := json.Unmarshal(raw, &s); err != nil {
			return PalmPayload{}, fmt.Errorf("canonical: decode structured palm: %w", err)
		}
		return PalmPayload{Variant: PalmStructured, Structured: &s}, nil
	}
	var l LegacyPalm
	if err := json.Unmarshal(raw, &l); err != nil {
		return PalmPayload{}, fmt.Errorf("canonical: decode legacy palm: %w", err)
	}
	return PalmPayload{Variant: PalmLegacy, Legacy: &l}, nil
}

// StructuredPalm is the schema requested by the current palm prompt.
type StructuredPalm struct {
	PalmLines         LineSet           `json:"palm_lines"`
	PersonalityTraits TraitSet          `json:"personality_traits"`
	Personality       LegacyPersonality `json:"personality"`
	Physical          Physical          `json:"physical_characteristics"`
	HandAnalysis      HandAnalysis      `json:"hand_type_analysis"`
	Predictions       PredictionSet     `json:"predictions"`
	SpecialMarks      MarkList          `json:"special_marks"`
}

type StructuredLine struct {
	Strength       Text        `json:"strength"`
	Type           Text        `json:"type"`
	QualityScore   Percent     `json:"quality_score"`
	Interpretation Text        `json:"interpretation"`
	Metrics        LineMetrics `json:"metrics"`
}

func (l *StructuredLine) UnmarshalJSON(b []byte) error {
	type plain StructuredLine
	return decodeObject(b, (*plain)(l))
}

type LineMetrics struct {
	Present         Text    `json:"present"`
	Clarity         Text    `json:"clarity"`
	Length          Text    `json:"length"`
	Depth           Text    `json:"depth"`
	Breaks          Text    `json:"breaks"`
	Continuity      Text    `json:"continuity"`
	Curvature       Text    `json:"curvature"`
	CalculatedScore Percent `json:"calculated_score"`
}

func (m *LineMetrics) UnmarshalJSON(b []byte) error {
	type plain LineMetrics
	return decodeObject(b, (*plain)(m))
}

// LineSet maps raw line keys (life_line, heart_line, ...) to lines.
type LineSet map[string]StructuredLine

func (s *LineSet) UnmarshalJSON(b []byte) error {
	m := map[string]StructuredLine{}
	if err := decodeObject(b, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

type StructuredTrait struct {
	Percentage  Percent `json:"percentage"`
	Score       Percent `json:"score"`
	Calculation Text    `json:"calculation"`
}

func (t *StructuredTrait) UnmarshalJSON(b []byte) error {
	type plain StructuredTrait
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		var p Percent
		_ = p.UnmarshalJSON(b)
		*t = StructuredTrait{Percentage: p}
		return nil
	}
	return decodeObject(b, (*plain)(t))
}

// TraitSet maps raw trait keys (creative, analytical, ...) to traits.
type TraitSet map[string]StructuredTrait

func (s *TraitSet) UnmarshalJSON(b []byte) error {
	m := map[string]StructuredTrait{}
	if err := decodeObject(b, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

type Physical struct {
	DominantHand    Text     `json:"dominant_hand"`
	PalmShape       Text     `json:"palm_shape"`
	FingerLength    Text     `json:"finger_length"`
	HandType        Text     `json:"hand_type"`
	HandTypeSummary Text     `json:"hand_type_summary"`
	HandTypeDesc    Text     `json:"hand_type_description"`
	Mounts          MountSet `json:"mounts"`
}

func (p *Physical) UnmarshalJSON(b []byte) error {
	type plain Physical
	return decodeObject(b, (*plain)(p))
}

type HandAnalysis struct {
	OverallScore Percent `json:"overall_score"`
	Summary      Text    `json:"summary"`
}

func (h *HandAnalysis) UnmarshalJSON(b []byte) error {
	type plain HandAnalysis
	return decodeObject(b, (*plain)(h))
}

// MountValue accepts either a bare level ("High") or {"development", "meaning"}.
type MountValue struct {
	Development Text `json:"development"`
	Level       Text `json:"level"`
	Meaning     Text `json:"meaning"`
}

func (m *MountValue) UnmarshalJSON(b []byte) error {
	type plain MountValue
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		var t Text
		_ = t.UnmarshalJSON(b)
		*m = MountValue{Development: t}
		return nil
	}
	return decodeObject(b, (*plain)(m))
}

// level returns whichever development label was supplied.
func (m MountValue) level() Text {
	if m.Development.Known() {
		return m.Development
	}
	return m.Level
}

type MountSet map[string]MountValue

func (s *MountSet) UnmarshalJSON(b []byte) error {
	m := map[string]MountValue{}
	if err := decodeObject(b, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

type PredictionRaw struct {
	Area            Text    `json:"area"`
	Period          Text    `json:"period"`
	Timeframe       Text    `json:"timeframe"`
	Prediction      Text    `json:"prediction"`
	Advice          Text    `json:"advice"`
	Confidence      Percent `json:"confidence"`
	ConfidenceScore Percent `json:"confidence_score"`
	LowCertainty    Flag    `json:"low_certainty"`
}

func (p *PredictionRaw) UnmarshalJSON(b []byte) error {
	type plain PredictionRaw
	return decodeObject(b, (*plain)(p))
}

func (p PredictionRaw) confidence() Percent {
	if p.Confidence.Set {
		return p.Confidence
	}
	return p.ConfidenceScore
}

func (p PredictionRaw) timeframe() string {
	if p.Period.Known() {
		return p.Period.String()
	}
	if p.Timeframe.Known() {
		return p.Timeframe.String()
	}
	return ""
}

// PredictionSet maps areas (career, relationships, ...) to predictions.
type PredictionSet map[string]PredictionRaw

func (s *PredictionSet) UnmarshalJSON(b []byte) error {
	m := map[string]PredictionRaw{}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []PredictionRaw
		if err := decodeArray(b, &list); err != nil {
			return err
		}
		for _, p := range list {
			key := predictionArea(p.Area.String())
			if key == "" {
				key = p.Area.String()
			}
			if key == "" {
				continue
			}
			if _, dup := m[key]; !dup {
				m[key] = p
			}
		}
		*s = m
		return nil
	}
	if err := decodeObject(b, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

// PredictionList keeps the order of a raw predictions array.
type PredictionList []PredictionRaw

func (l *PredictionList) UnmarshalJSON(b []byte) error {
	var list []PredictionRaw
	if err := decodeArray(b, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

type MarkRaw struct {
	Type         Text `json:"type"`
	Name         Text `json:"name"`
	Location     Text `json:"location"`
	Meaning      Text `json:"meaning"`
	ImpactLevel  Text `json:"impact_level"`
	Significance Text `json:"significance"`
}

func (m *MarkRaw) UnmarshalJSON(b []byte) error {
	type plain MarkRaw
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var t Text
		_ = t.UnmarshalJSON(b)
		*m = MarkRaw{Type: t}
		return nil
	}
	return decodeObject(b, (*plain)(m))
}

type MarkList []MarkRaw

func (l *MarkList) UnmarshalJSON(b []byte) error {
	var list []MarkRaw
	if err := decodeArray(b, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// LegacyPalm is the older flat schema that already resembles the canonical
// shape but with unnormalized values and gaps.
type LegacyPalm struct {
	Lines         LegacyLineSet     `json:"lines"`
	Personality   LegacyPersonality `json:"personality"`
	Predictions   PredictionList    `json:"predictions"`
	Compatibility CompatibilityList `json:"compatibility"`
	SpecialMarks  MarkList          `json:"specialMarks"`
	Accuracy      LegacyAccuracy    `json:"accuracy"`
	OverallScore  Percent           `json:"overallScore"`
	Summary       Text              `json:"summary"`
}

type LegacyLine struct {
	Quality  Text    `json:"quality"`
	Strength Text    `json:"strength"`
	Score    Percent `json:"score"`
	Meaning  Text    `json:"meaning"`
	Details  Text    `json:"details"`
}

func (l *LegacyLine) UnmarshalJSON(b []byte) error {
	type plain LegacyLine
	return decodeObject(b, (*plain)(l))
}

type LegacyLineSet map[string]LegacyLine

func (s *LegacyLineSet) UnmarshalJSON(b []byte) error {
	m := map[string]LegacyLine{}
	if err := decodeObject(b, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

type LegacyTrait struct {
	Name        Text    `json:"name"`
	Score       Percent `json:"score"`
	Percentage  Percent `json:"percentage"`
	Description Text    `json:"description"`
	Meaning     Text    `json:"meaning"`
}

func (t *LegacyTrait) UnmarshalJSON(b []byte) error {
	type plain LegacyTrait
	b = bytes.TrimSpace(b)
	switch {
	case len(b) > 0 && b[0] == '"':
		var name Text
		_ = name.UnmarshalJSON(b)
		*t = LegacyTrait{Name: name}
		return nil
	case len(b) > 0 && b[0] != '{':
		var p Percent
		_ = p.UnmarshalJSON(b)
		*t = LegacyTrait{Score: p}
		return nil
	}
	return decodeObject(b, (*plain)(t))
}

func (t LegacyTrait) score() Percent {
	if t.Score.Set {
		return t.Score
	}
	return t.Percentage
}

func (t LegacyTrait) description() string {
	if t.Description.Known() {
		return t.Description.String()
	}
	if t.Meaning.Known() {
		return t.Meaning.String()
	}
	return ""
}

type LegacyTraitList []LegacyTrait

func (l *LegacyTraitList) UnmarshalJSON(b []byte) error {
	var list []LegacyTrait
	if err := decodeArray(b, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// legacyNamedTraits are the per-trait keys the older prompt placed directly
// under "personality".
var legacyNamedTraits = []string{"leadership", "creativity", "intuition", "communication", "determination"}

type LegacyPersonality struct {
	Traits           LegacyTraitList `json:"traits"`
	DominantHand     Text            `json:"dominantHand"`
	PalmShape        Text            `json:"palmShape"`
	FingerLength     Text            `json:"fingerLength"`
	HandType         Text            `json:"handType"`
	HandTypeAnalysis Text            `json:"handTypeAnalysis"`
	Mounts           MountSet        `json:"mounts"`
	// Named holds personality.{leadership,...} entries keyed by trait.
	Named map[string]LegacyTrait `json:"-"`
}

func (p *LegacyPersonality) UnmarshalJSON(b []byte) error {
	type plain LegacyPersonality
	*p = LegacyPersonality{}
	if err := decodeObject(b, (*plain)(p)); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := decodeObject(b, &fields); err != nil {
		return err
	}
	for _, key := range legacyNamedTraits {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var t LegacyTrait
		if err := t.UnmarshalJSON(raw); err != nil {
			return err
		}
		if p.Named == nil {
			p.Named = make(map[string]LegacyTrait)
		}
		p.Named[key] = t
	}
	return nil
}

type CompatibilityRaw struct {
	Type        Text    `json:"type"`
	Category    Text    `json:"category"`
	Number      Text    `json:"number"`
	Sign        Text    `json:"sign"`
	Match       Percent `json:"match"`
	MatchScore  Percent `json:"matchScore"`
	Score       Percent `json:"score"`
	Description Text    `json:"description"`
}

func (c *CompatibilityRaw) UnmarshalJSON(b []byte) error {
	type plain CompatibilityRaw
	return decodeObject(b, (*plain)(c))
}

func (c CompatibilityRaw) category() string {
	for _, t := range []Text{c.Category, c.Type, c.Sign, c.Number} {
		if t.Known() {
			return t.String()
		}
	}
	return ""
}

func (c CompatibilityRaw) score() Percent {
	for _, p := range []Percent{c.MatchScore, c.Match, c.Score} {
		if p.Set {
			return p
		}
	}
	return Percent{}
}

type CompatibilityList []CompatibilityRaw

func (l *CompatibilityList) UnmarshalJSON(b []byte) error {
	var list []CompatibilityRaw
	if err := decodeArray(b, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

type LegacyAccuracy struct {
	LineDetection   Percent `json:"lineDetection"`
	PatternAnalysis Percent `json:"patternAnalysis"`
	Interpretation  Percent `json:"interpretation"`
	Overall         Percent `json:"overall"`
}

func (a *LegacyAccuracy) UnmarshalJSON(b []byte) error {
	type plain LegacyAccuracy
	return decodeObject(b, (*plain)(a))
}

// predictionArea maps free-form area labels onto the four canonical areas.
func predictionArea(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "career"), strings.Contains(l, "work"), strings.Contains(l, "profession"):
		return AreaCareer
	case strings.Contains(l, "relationship"), strings.Contains(l, "love"), strings.Contains(l, "romance"):
		return AreaRelationships
	case strings.Contains(l, "health"), strings.Contains(l, "wellness"), strings.Contains(l, "vitality"):
		return AreaHealth
	case strings.Contains(l, "financ"), strings.Contains(l, "money"), strings.Contains(l, "wealth"):
		return AreaFinances
	}
	return ""
}
