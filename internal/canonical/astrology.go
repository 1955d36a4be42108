package canonical

import (
	"fmt"
	"strings"

	"palmreader/internal/divination"
	"palmreader/internal/domain"
)

// AstrologyPayload is the raw astrology schema.
type AstrologyPayload struct {
	SunSign              Text              `json:"sun_sign"`
	MoonSign             Text              `json:"moon_sign"`
	RisingSign           Text              `json:"rising_sign"`
	Overview             Section           `json:"overview"`
	Personality          Section           `json:"personality"`
	PlanetaryPositions   PlacementList     `json:"planetary_positions"`
	Strengths            Section           `json:"strengths"`
	Challenges           Section           `json:"challenges"`
	LifePredictions      PredictionSet     `json:"life_predictions"`
	RelationshipInsights Section           `json:"relationship_insights"`
	CareerPath           Section           `json:"career_path"`
	SpiritualMessage     Section           `json:"spiritual_message"`
	Compatibility        CompatibilityList `json:"compatibility"`
	OverallScore         Percent           `json:"overall_score"`
}

// DecodeAstrology decodes obj into the astrology payload.
func DecodeAstrology(obj map[string]any) (AstrologyPayload, error) {
	var p AstrologyPayload
	if err := redecode(obj, &p); err != nil {
		return AstrologyPayload{}, fmt.Errorf("canonical: decode astrology: %w", err)
	}
	return p, nil
}

// Section is one narrative block of an astrology reading. Its list field
// arrives under several names depending on the section.
type Section struct {
	Summary    Text     `json:"summary"`
	Text       Text     `json:"text"`
	Traits     TextList `json:"traits"`
	Items      TextList `json:"items"`
	KeyThemes  TextList `json:"key_themes"`
	Factors    TextList `json:"compatibility_factors"`
	Fields     TextList `json:"suitable_fields"`
	Confidence Percent  `json:"confidence"`
}

func (s *Section) UnmarshalJSON(b []byte) error {
	type plain Section
	return decodeObject(b, (*plain)(s))
}

func (s Section) body() string {
	if s.Text.Known() {
		return s.Text.String()
	}
	if s.Summary.Known() {
		return s.Summary.String()
	}
	return ""
}

type Placement struct {
	Planet Text `json:"planet"`
	Sign   Text `json:"sign"`
	House  Text `json:"house"`
	Aspect Text `json:"aspect"`
}

func (p *Placement) UnmarshalJSON(b []byte) error {
	type plain Placement
	return decodeObject(b, (*plain)(p))
}

type PlacementList []Placement

func (l *PlacementList) UnmarshalJSON(b []byte) error {
	var list []Placement
	if err := decodeArray(b, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// elementTraits lists the traits each element naturally expresses.
var elementTraits = map[string][]string{
	"Fire":  {"Ambitious", "Passionate", "Courageous", "Energetic", "Confident", "Charismatic", "Independent", "Leadership"},
	"Earth": {"Practical", "Reliable", "Patient", "Grounded", "Disciplined", "Loyal"},
	"Air":   {"Curious", "Communicative", "Creative", "Social", "Intellectual", "Adaptable"},
	"Water": {"Intuitive", "Nurturing", "Empathetic", "Emotional", "Sensitive", "Compassionate"},
}

// majorPlacements are reported with high significance.
var majorPlacements = map[string]bool{"sun": true, "moon": true, "ascendant": true, "rising": true}

const defaultSectionConfidence = 70

func signOr(t Text, fallback string) string {
	if divination.SignIndex(t.String()) >= 0 {
		return titleCase(t.String())
	}
	return fallback
}

func sectionConfidence(sections ...Section) float64 {
	for _, s := range sections {
		if s.Confidence.Positive() {
			return s.Confidence.Value
		}
	}
	return 60
}

func (e *Engine) astrology(p AstrologyPayload, chart *divination.BasicChart) *domain.Result {
	var hint divination.BasicChart
	if chart != nil {
		hint = *chart
	}
	sun := signOr(p.SunSign, hint.SunSign)
	moon := signOr(p.MoonSign, hint.MoonSign)
	rising := signOr(p.RisingSign, hint.RisingSign)
	element := divination.ElementOf(sun)
	modality := divination.ModalityOf(sun)

	affinity := elementTraits[element]
	personalityConfidence := p.Personality.Confidence.Or(defaultSectionConfidence)
	var inputs []traitInput
	for _, name := range p.Personality.Traits {
		inputs = append(inputs, traitInput{name: name})
	}
	if len(inputs) == 0 {
		names := affinity
		if len(names) > 4 {
			names = names[:4]
		}
		for _, name := range names {
			inputs = append(inputs, traitInput{name: name})
		}
	}
	traits := buildTraits(inputs,
		func(name string) (float64, string, bool) {
			fit := 65.0
			var factors []string
			if hasTrait(affinity, name) {
				fit = 85
				factors = append(factors, fmt.Sprintf("%s %s energy", sun, strings.ToLower(element)))
			}
			score := round1(clamp(0.6*personalityConfidence+0.4*fit, traitMin, traitMax))
			return score, traitDescription(factors, score, strings.ToLower(name)+" expression"), true
		}, nil)

	predictions := buildPredictions(collectPredictions(p.LifePredictions, nil), predictionRules{
		confidence: func(area string) float64 {
			switch area {
			case AreaCareer, AreaFinances:
				return sectionConfidence(p.CareerPath, p.Overview)
			case AreaRelationships:
				return sectionConfidence(p.RelationshipInsights, p.Overview)
			}
			return sectionConfidence(p.Overview)
		},
		text: func(area string) string {
			switch area {
			case AreaCareer, AreaFinances:
				if body := p.CareerPath.body(); body != "" {
					return body
				}
			case AreaRelationships:
				if body := p.RelationshipInsights.body(); body != "" {
					return body
				}
			}
			return signPrediction(area, sun)
		},
	})

	marks := make([]domain.SpecialMark, 0, len(p.PlanetaryPositions))
	for _, pl := range p.PlanetaryPositions {
		if !pl.Planet.Known() {
			continue
		}
		planet := titleCase(pl.Planet.String())
		significance := levelMedium
		if majorPlacements[strings.ToLower(planet)] {
			significance = levelHigh
		}
		var where []string
		if pl.Sign.Known() {
			where = append(where, titleCase(pl.Sign.String()))
		}
		if pl.House.Known() {
			where = append(where, pl.House.String())
		}
		location := strings.Join(where, ", ")
		if location == "" {
			location = "Chart"
		}
		meaning := pl.Aspect.String()
		if !pl.Aspect.Known() {
			meaning = fmt.Sprintf("%s colours this part of your chart.", planet)
			if pl.Sign.Known() {
				meaning = fmt.Sprintf("%s in %s colours this part of your chart.", planet, titleCase(pl.Sign.String()))
			}
		}
		marks = append(marks, domain.SpecialMark{
			Name:         planet,
			Location:     location,
			Meaning:      meaning,
			Significance: significance,
		})
	}

	var compat []domain.Compatibility
	if len(p.Compatibility) > 0 {
		compat = suppliedCompatibility(p.Compatibility, func(category string) compatCell {
			return signCell(sun, titleCase(category))
		})
	}
	if len(compat) == 0 && sun != "" {
		compat = e.signCompatibility(sun)
	}

	overall := overallScore(p.OverallScore, overallInputs{
		traitScores: traitScores(traits),
		marks:       marks,
	})
	summary := p.Overview.body()
	if summary == "" {
		summary = overallSummary(overall)
	}
	themes := []string(p.Overview.KeyThemes)
	if themes == nil {
		themes = []string{}
	}
	note := hint.Note
	if note == "" {
		note = divination.ChartNote
	}
	return &domain.Result{
		Traits:        traits,
		Predictions:   predictions,
		SpecialMarks:  marks,
		Compatibility: compat,
		Accuracy:      accuracyFrom(average(predictionConfidences(predictions), confidenceFloor)),
		Summary:       summary,
		OverallScore:  overall,
		Chart: &domain.ChartProfile{
			SunSign:    sun,
			MoonSign:   moon,
			RisingSign: rising,
			Element:    element,
			Modality:   modality,
			KeyThemes:  themes,
			Strengths:  nonNil(p.Strengths.Items),
			Challenges: nonNil(p.Challenges.Items),
			ChartNote:  note,
		},
	}
}

var signPredictions = map[string]string{
	AreaCareer:        "As a %s, you do your best work in roles that let you lead and innovate. New professional openings are likely over the coming months.",
	AreaRelationships: "Your %s nature values authenticity. Meaningful connections deepen when you share your feelings openly.",
	AreaHealth:        "Your %s energy stays strongest with a steady routine. Make room for rest as well as activity.",
	AreaFinances:      "A %s approach to money works best with a clear plan. Careful budgeting now supports later opportunities.",
}

func signPrediction(area, sun string) string {
	if sun == "" {
		sun = "sign"
	}
	if tmpl, ok := signPredictions[area]; ok {
		return fmt.Sprintf(tmpl, sun)
	}
	return ""
}

func nonNil(list TextList) []string {
	if list == nil {
		return []string{}
	}
	return []string(list)
}
