package pipeline

import (
	"encoding/base64"
	"fmt"
	"strings"

	"palmreader/internal/canonical"
	"palmreader/internal/divination"
	"palmreader/internal/domain"
	"palmreader/internal/providers/completion"
)

const (
	palmTemperature    = 0.2
	defaultTemperature = 0.3
	defaultMaxTokens   = 2000
)

const jsonOnly = "Return ONLY valid JSON. No explanations, no markdown, just pure JSON starting with { and ending with }."

var systemPrompts = map[domain.ReadingKind]string{
	domain.KindPalm:       "You are an expert palm reader and vision analyst. " + jsonOnly,
	domain.KindNumerology: "You are a master numerologist. " + jsonOnly,
	domain.KindAstrology:  "You are a master astrologer. " + jsonOnly,
}

const palmSchema = `{
  "palm_lines": {
    "life_line": {"strength": "Strong|Moderate|Weak|Broken", "quality_score": "XX%", "interpretation": "string",
      "metrics": {"clarity": "Deep|Moderate|Faint|Unclear", "length": "Full|Partial|Short", "depth": "Deep|Moderate|Shallow", "breaks": "None|Minor|Major", "calculated_score": "XX%"}},
    "heart_line": {"strength": "Strong|Moderate|Weak", "quality_score": "XX%", "interpretation": "string",
      "metrics": {"clarity": "Deep|Moderate|Faint|Unclear", "depth": "Deep|Moderate|Shallow", "continuity": "Unbroken|Minor breaks|Major breaks", "calculated_score": "XX%"}},
    "head_line": {"strength": "Strong|Moderate|Weak", "quality_score": "XX%", "interpretation": "string",
      "metrics": {"clarity": "Deep|Moderate|Faint|Unclear", "depth": "Deep|Moderate|Shallow", "continuity": "Unbroken|Minor breaks|Major breaks", "curvature": "Straight|Curved|Highly Curved", "calculated_score": "XX%"}},
    "fate_line": {"strength": "Present|Weak|Faint|Absent", "quality_score": "XX%", "interpretation": "string",
      "metrics": {"present": "Yes|No", "clarity": "Deep|Moderate|Faint|Unclear|N/A", "depth": "Deep|Moderate|Shallow|N/A", "calculated_score": "XX%"}}
  },
  "personality_traits": {
    "creative": {"percentage": "XX%", "calculation": "string"},
    "analytical": {"percentage": "XX%", "calculation": "string"},
    "emotional": {"percentage": "XX%", "calculation": "string"},
    "leadership": {"percentage": "XX%", "calculation": "string"},
    "practical": {"percentage": "XX%", "calculation": "string"},
    "intuitive": {"percentage": "XX%", "calculation": "string"}
  },
  "physical_characteristics": {
    "dominant_hand": "Left|Right", "palm_shape": "Square|Fire|Water|Air|Earth", "finger_length": "Short|Medium|Long", "hand_type": "string",
    "mounts": {"venus": "High|Medium|Low", "jupiter": "High|Medium|Low", "saturn": "High|Medium|Low", "apollo": "High|Medium|Low", "mercury": "High|Medium|Low", "moon": "High|Medium|Low"}
  },
  "hand_type_analysis": {"overall_score": "XX%", "summary": "string"},
  "predictions": {
    "career": {"period": "string", "prediction": "string", "advice": "string", "confidence": "XX%"},
    "relationships": {"period": "string", "prediction": "string", "advice": "string", "confidence": "XX%"},
    "health": {"period": "string", "prediction": "string", "advice": "string", "confidence": "XX%"},
    "finances": {"period": "string", "prediction": "string", "advice": "string", "confidence": "XX%"}
  },
  "special_marks": [{"type": "Star|Cross|Chain|Island|Fork|Triangle|Break|Grille", "location": "string", "meaning": "string", "impact_level": "High|Medium|Low"}]
}`

const numerologySchema = `{
  "core_numbers": {
    "life_path": {"number": 0, "meaning": "string"},
    "destiny": {"number": 0, "meaning": "string"},
    "soul_urge": {"number": 0, "meaning": "string"},
    "personality": {"number": 0, "meaning": "string"}
  },
  "traits": [{"name": "string", "score": "XX%", "description": "string"}],
  "strengths": ["string"],
  "challenges": ["string"],
  "predictions": {
    "career": {"timeframe": "string", "prediction": "string", "advice": "string", "confidence": "XX%"},
    "relationships": {"timeframe": "string", "prediction": "string", "advice": "string", "confidence": "XX%"},
    "health": {"timeframe": "string", "prediction": "string", "advice": "string", "confidence": "XX%"},
    "finances": {"timeframe": "string", "prediction": "string", "advice": "string", "confidence": "XX%"}
  },
  "lucky_numbers": [0],
  "karmic_lessons": [0],
  "summary": "string"
}`

const astrologySchema = `{
  "sun_sign": "string", "moon_sign": "string", "rising_sign": "string",
  "overview": {"summary": "string", "key_themes": ["string"], "confidence": 0.0},
  "personality": {"summary": "string", "traits": ["string"], "confidence": 0.0},
  "planetary_positions": [{"planet": "string", "sign": "string", "house": "string", "aspect": "string"}],
  "strengths": {"items": ["string"], "summary": "string", "confidence": 0.0},
  "challenges": {"items": ["string"], "summary": "string", "confidence": 0.0},
  "life_predictions": [{"area": "string", "timeframe": "string", "prediction": "string", "confidence": 0.0}],
  "relationship_insights": {"text": "string", "compatibility_factors": ["string"], "confidence": 0.0},
  "career_path": {"text": "string", "suitable_fields": ["string"], "confidence": 0.0},
  "spiritual_message": {"text": "string", "confidence": 0.0}
}`

// buildRequest assembles the completion call for job. image is the uploaded
// palm photo and is ignored for other kinds.
func buildRequest(job *domain.Job, hints canonical.Hints, image []byte, model string) completion.Request {
	req := completion.Request{
		System:      systemPrompts[job.Kind],
		Model:       model,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		JSONMode:    true,
	}
	switch job.Kind {
	case domain.KindPalm:
		req.Temperature = palmTemperature
		req.Prompt = palmPrompt()
		req.ImageDataURL = dataURL(image, job.Input.ImageMIME)
	case domain.KindNumerology:
		req.Prompt = numerologyPrompt(job.Input, hints.Numerology)
	case domain.KindAstrology:
		req.Prompt = astrologyPrompt(job.Input, hints.Chart)
	}
	return req
}

func palmPrompt() string {
	var b strings.Builder
	b.WriteString("Analyze the palm in the attached image. Examine the lines first, then the mounts, then the physical characteristics, ")
	b.WriteString("and derive trait percentages and prediction confidence from what is visible.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Line scores come from their metrics: life = (clarity + length + depth + continuity) / 4, heart = (clarity + depth + continuity) / 3, ")
	b.WriteString("head = (clarity + depth + continuity + curvature) / 4, fate = (clarity + depth) / 2.\n")
	b.WriteString("- When the fate line is missing report strength \"Absent\", present \"No\" and quality_score \"0%\".\n")
	b.WriteString("- Interpretations must match the detected line condition; predictions must match the line readings.\n")
	b.WriteString("- If the image is unclear still return complete JSON with lower confidence (30-60%).\n")
	b.WriteString("- If the image is clearly not a human palm return {\"error\": \"Please upload a clear image of a human palm.\"}.\n")
	b.WriteString("- Percentages are strings like \"65%\".\n\n")
	b.WriteString("Respond with JSON exactly in this shape:\n")
	b.WriteString(palmSchema)
	return b.String()
}

func numerologyPrompt(in domain.InputAttributes, chart *divination.NumerologyChart) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a numerology reading for %s, born %s.\n", strings.TrimSpace(in.FullName), strings.TrimSpace(in.BirthDate))
	if chart != nil {
		b.WriteString("Use these precomputed numbers exactly as given; do not recalculate them.\n")
		fmt.Fprintf(&b, "- Method: %s\n", chart.Method)
		fmt.Fprintf(&b, "- Normalized name: %s\n", chart.Name.Normalized)
		fmt.Fprintf(&b, "- Life path: %d (raw %d)\n", chart.LifePath, chart.LifePathRaw)
		fmt.Fprintf(&b, "- Destiny: %d (raw %d)\n", chart.Name.Destiny, chart.Name.DestinyRaw)
		fmt.Fprintf(&b, "- Soul urge: %d (raw %d)\n", chart.Name.Soul, chart.Name.SoulRaw)
		fmt.Fprintf(&b, "- Personality: %d (raw %d)\n", chart.Name.Personality, chart.Name.PersonalityRaw)
		fmt.Fprintf(&b, "- Karmic lessons: %s\n", joinInts(chart.KarmicLessons))
	}
	b.WriteString("\nMaster numbers 11, 22 and 33 are never reduced. Confidence values are percentages.\n")
	b.WriteString("Respond with JSON exactly in this shape:\n")
	b.WriteString(numerologySchema)
	return b.String()
}

func astrologyPrompt(in domain.InputAttributes, chart *divination.BasicChart) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a natal astrology reading for %s.\n", strings.TrimSpace(in.FullName))
	fmt.Fprintf(&b, "- Birth date: %s\n", strings.TrimSpace(in.BirthDate))
	if t := strings.TrimSpace(in.BirthTime); t != "" {
		fmt.Fprintf(&b, "- Birth time: %s\n", t)
	} else {
		b.WriteString("- Birth time: unknown\n")
	}
	if place := strings.TrimSpace(in.BirthPlace); place != "" {
		fmt.Fprintf(&b, "- Birth place: %s\n", place)
	}
	if g := strings.TrimSpace(in.Gender); g != "" {
		fmt.Fprintf(&b, "- Gender: %s\n", g)
	}
	if len(in.Preferences) > 0 {
		fmt.Fprintf(&b, "- Focus areas: %s\n", strings.Join(in.Preferences, ", "))
	}
	if chart != nil {
		fmt.Fprintf(&b, "- Sun sign: %s (%s, %s)\n", chart.SunSign, chart.Element, chart.Modality)
		fmt.Fprintf(&b, "- Moon sign: %s\n", chart.MoonSign)
		fmt.Fprintf(&b, "- Rising sign: %s\n", chart.RisingSign)
		fmt.Fprintf(&b, "- Note: %s\n", chart.Note)
	}
	b.WriteString("\nKeep the supplied signs. Confidence values are fractions between 0 and 1.\n")
	b.WriteString("Respond with JSON exactly in this shape:\n")
	b.WriteString(astrologySchema)
	return b.String()
}

func dataURL(data []byte, mime string) string {
	if len(data) == 0 {
		return ""
	}
	if mime = strings.TrimSpace(mime); mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return "none"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
