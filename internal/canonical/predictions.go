package canonical

import (
	"sort"

	"palmreader/internal/domain"
)

const (
	// Derived confidences below this are replaced unless flagged low-certainty.
	confidenceFloor = 50
	// Supplied confidences below this are treated as missing.
	confidenceUsable = 30
)

// predictionInputs groups raw predictions by canonical area and keeps any
// extra areas in a stable order.
type predictionInputs struct {
	byArea map[string]PredictionRaw
	extras []PredictionRaw
}

func collectPredictions(set PredictionSet, list PredictionList) predictionInputs {
	in := predictionInputs{byArea: make(map[string]PredictionRaw, len(predictionAreas))}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p := set[key]
		area := predictionArea(key)
		if area == "" {
			area = predictionArea(p.Area.String())
		}
		if area == "" {
			if !p.Area.Known() {
				p.Area = Text(key)
			}
			in.extras = append(in.extras, p)
			continue
		}
		if _, dup := in.byArea[area]; !dup {
			in.byArea[area] = p
		}
	}
	for _, p := range list {
		area := predictionArea(p.Area.String())
		if area == "" {
			if p.Area.Known() {
				in.extras = append(in.extras, p)
			}
			continue
		}
		if _, dup := in.byArea[area]; !dup {
			in.byArea[area] = p
		}
	}
	return in
}

// predictionRules supplies the kind-specific fallbacks for one reading.
type predictionRules struct {
	confidence func(area string) float64
	text       func(area string) string
	advice     func(area string) string
}

func buildPredictions(in predictionInputs, rules predictionRules) []domain.Prediction {
	out := make([]domain.Prediction, 0, len(predictionAreas)+len(in.extras))
	for _, area := range predictionAreas {
		out = append(out, buildPrediction(area, areaTitles[area], in.byArea[area], rules))
	}
	for _, p := range in.extras {
		out = append(out, buildPrediction("", titleCase(p.Area.String()), p, rules))
	}
	return out
}

func buildPrediction(area, title string, raw PredictionRaw, rules predictionRules) domain.Prediction {
	lowCertainty := bool(raw.LowCertainty)
	supplied := raw.confidence()
	confidence := supplied.Value
	// A model that flagged low certainty keeps its own figure.
	keep := lowCertainty && supplied.Positive()
	if !keep && (!supplied.Set || confidence < confidenceUsable) {
		confidence = confidenceFloor
		if area != "" && rules.confidence != nil {
			confidence = rules.confidence(area)
		}
	}
	if !lowCertainty && confidence < confidenceFloor {
		confidence = confidenceFloor
	}

	timeframe := raw.timeframe()
	if timeframe == "" {
		timeframe = defaultTimeframes[area]
	}
	if timeframe == "" {
		timeframe = "Next 6 months"
	}
	text := raw.Prediction.String()
	if !raw.Prediction.Known() {
		text = ""
		if rules.text != nil && area != "" {
			text = rules.text(area)
		}
		if text == "" {
			text = "Steady developments are indicated in this area. Stay attentive to new opportunities."
		}
	}
	advice := raw.Advice.String()
	if !raw.Advice.Known() {
		advice = ""
		if rules.advice != nil && area != "" {
			advice = rules.advice(area)
		}
		if advice == "" {
			advice = defaultAdvice[area]
		}
		if advice == "" {
			advice = "Reflect on your goals regularly and act with patience."
		}
	}
	return domain.Prediction{
		Area:         title,
		Timeframe:    timeframe,
		Prediction:   text,
		Advice:       advice,
		Confidence:   round1(clamp(confidence, 0, 100)),
		LowCertainty: lowCertainty,
	}
}

// palmConfidence derives an area confidence from line scores and mounts.
func palmConfidence(f *palmFeatures, lines map[string]domain.Line, area string) float64 {
	fate := lines[domain.LineFate].Score
	head := lines[domain.LineHead].Score
	heart := lines[domain.LineHeart].Score
	life := lines[domain.LineLife].Score
	switch area {
	case AreaCareer:
		saturn := byLevel(f.mount("saturn"), 80, 60, 40)
		return clamp(fate*0.4+saturn*0.3+head*0.3, 50, 90)
	case AreaRelationships:
		venus := byLevel(f.mount("venus"), 80, 60, 40)
		moon := byLevel(f.mount("moon"), 75, 55, 35)
		return clamp(heart*0.5+venus*0.3+moon*0.2, 50, 90)
	case AreaHealth:
		vitality := (life + fate + head) / 3
		return clamp(life*0.6+vitality*0.4, 60, 95)
	case AreaFinances:
		mercury := byLevel(f.mount("mercury"), 85, 65, 45)
		sun := byLevel(f.mount("sun"), 80, 60, 40)
		return clamp(fate*0.4+mercury*0.4+sun*0.2, 50, 90)
	}
	return confidenceFloor
}

func palmPrediction(f *palmFeatures, area string) string {
	fateClear := false
	switch f.lineLabel(domain.LineFate, "") {
	case "present", "strong":
		fateClear = true
	}
	switch area {
	case AreaCareer:
		if fateClear {
			return "Your clear fate line indicates defined career direction. Professional opportunities may arise that align with your structured approach and leadership qualities."
		}
		return "Your flexible career path suggests adaptability. Focus on setting clear goals to navigate opportunities effectively."
	case AreaRelationships:
		switch f.lineLabel(domain.LineHeart, "") {
		case "strong":
			return "Your strong heart line indicates deep emotional capacity. Relationships may deepen with open communication and emotional expression."
		case "curved":
			return "Your curved heart line suggests expressive emotions. Emotional connections may flourish with genuine openness and romantic gestures."
		}
		return "Your heart line suggests developing emotional awareness. Working on expressing feelings more openly will strengthen your relationships."
	case AreaHealth:
		if f.lineLabel(domain.LineLife, "") == "strong" {
			return "Your strong life line indicates robust vitality and good health. Continue maintaining a balanced lifestyle to preserve your energy."
		}
		return "Your life line suggests moderate health with potential for improvement. Focus on balanced nutrition, exercise, and stress management."
	case AreaFinances:
		if fateClear && f.mount("mercury") == levelHigh {
			return "Your strong fate line with prominent Mercury mount suggests financial opportunities through communication and negotiation. Stability is likely with careful planning."
		}
		return "Your palm suggests financial flexibility. Create a budget and plan for unexpected expenses while remaining open to opportunities."
	}
	return ""
}

func predictionConfidences(predictions []domain.Prediction) []float64 {
	values := make([]float64, 0, len(predictions))
	for _, p := range predictions {
		values = append(values, p.Confidence)
	}
	return values
}
