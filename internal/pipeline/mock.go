package pipeline

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"palmreader/internal/canonical"
	"palmreader/internal/divination"
	"palmreader/internal/domain"
)

// MockModelVersion tags results produced by the local fallback generator.
const MockModelVersion = "mock-1.0"

// mockSeed derives a stable seed from a job id so a retried fallback
// produces the same reading.
func mockSeed(jobID string) uint64 {
	sum := sha256.Sum256([]byte(jobID))
	return binary.BigEndian.Uint64(sum[:8])
}

// mockPayload builds a raw payload in the same schema the model is asked to
// return, from helper values and job-seeded choices.
func mockPayload(job *domain.Job, hints canonical.Hints) (string, error) {
	r := rand.New(rand.NewPCG(mockSeed(job.ID), 0x5bd1e995))
	var obj map[string]any
	switch job.Kind {
	case domain.KindPalm:
		obj = mockPalm(r)
	case domain.KindNumerology:
		obj = mockNumerology(job.Input, hints.Numerology)
	case domain.KindAstrology:
		obj = mockAstrology(job.Input, hints.Chart, r)
	default:
		return "", fmt.Errorf("pipeline: no fallback for kind %q", job.Kind)
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("pipeline: encode fallback payload: %w", err)
	}
	return string(raw), nil
}

func pick(r *rand.Rand, options ...string) string {
	return options[r.IntN(len(options))]
}

func mockPalm(r *rand.Rand) map[string]any {
	clarity := []string{"Deep", "Moderate", "Faint"}
	depth := []string{"Deep", "Moderate", "Shallow"}
	continuity := []string{"Unbroken", "Minor breaks"}

	fate := map[string]any{
		"strength": "Absent",
		"metrics":  map[string]any{"present": "No"},
	}
	if r.IntN(4) > 0 {
		fate = map[string]any{
			"strength": pick(r, "Present", "Weak", "Faint"),
			"metrics": map[string]any{
				"present": "Yes",
				"clarity": pick(r, clarity...),
				"depth":   pick(r, depth...),
			},
		}
	}

	marks := []any{}
	for i, n := 0, r.IntN(3); i < n; i++ {
		marks = append(marks, map[string]any{
			"type":         pick(r, "Star", "Triangle", "Fork", "Cross", "Island", "Chain"),
			"location":     pick(r, "On Jupiter mount", "On Sun mount", "On life line", "On head line"),
			"impact_level": pick(r, "High", "Medium", "Low"),
		})
	}

	return map[string]any{
		"palm_lines": map[string]any{
			"life_line": map[string]any{
				"strength": pick(r, "Strong", "Moderate"),
				"metrics": map[string]any{
					"clarity": pick(r, clarity...),
					"length":  pick(r, "Full", "Partial"),
					"depth":   pick(r, depth...),
					"breaks":  pick(r, "None", "Minor"),
				},
			},
			"heart_line": map[string]any{
				"strength": pick(r, "Strong", "Moderate", "Weak"),
				"metrics": map[string]any{
					"clarity":    pick(r, clarity...),
					"depth":      pick(r, depth...),
					"continuity": pick(r, continuity...),
				},
			},
			"head_line": map[string]any{
				"strength": pick(r, "Strong", "Moderate"),
				"metrics": map[string]any{
					"clarity":    pick(r, clarity...),
					"depth":      pick(r, depth...),
					"continuity": pick(r, continuity...),
					"curvature":  pick(r, "Straight", "Curved", "Highly Curved"),
				},
			},
			"fate_line": fate,
		},
		"physical_characteristics": map[string]any{
			"dominant_hand": pick(r, "Right", "Right", "Left"),
			"palm_shape":    pick(r, "Square", "Fire", "Water", "Air", "Earth"),
			"finger_length": pick(r, "Short", "Medium", "Long"),
			"mounts": map[string]any{
				"venus":   pick(r, "High", "Medium", "Low"),
				"jupiter": pick(r, "High", "Medium", "Low"),
				"saturn":  pick(r, "High", "Medium", "Low"),
				"apollo":  pick(r, "High", "Medium", "Low"),
				"mercury": pick(r, "High", "Medium", "Low"),
				"moon":    pick(r, "High", "Medium", "Low"),
			},
		},
		"special_marks": marks,
	}
}

func mockNumerology(in domain.InputAttributes, chart *divination.NumerologyChart) map[string]any {
	if chart == nil {
		return map[string]any{}
	}
	return map[string]any{
		"core_numbers": map[string]any{
			"life_path":   map[string]any{"number": chart.LifePath},
			"destiny":     map[string]any{"number": chart.Name.Destiny},
			"soul_urge":   map[string]any{"number": chart.Name.Soul},
			"personality": map[string]any{"number": chart.Name.Personality},
		},
		"karmic_lessons": chart.KarmicLessons,
		"lucky_numbers":  chart.LuckyNumbers,
		"summary": fmt.Sprintf("%s walks life path %d with destiny number %d. This reading was generated from the calculated numbers alone.",
			displayName(in.FullName), chart.LifePath, chart.Name.Destiny),
	}
}

func mockAstrology(in domain.InputAttributes, chart *divination.BasicChart, r *rand.Rand) map[string]any {
	if chart == nil {
		return map[string]any{}
	}
	sun, moon, rising := chart.SunSign, chart.MoonSign, chart.RisingSign
	confidence := func(base float64) float64 {
		return base + float64(r.IntN(7))/100
	}
	return map[string]any{
		"sun_sign":    sun,
		"moon_sign":   moon,
		"rising_sign": rising,
		"overview": map[string]any{
			"summary": fmt.Sprintf("%s, your %s sun, %s moon and %s rising combine the drive of your core sign with the instincts of your moon. This reading was generated from your birth details alone.",
				displayName(in.FullName), sun, moon, rising),
			"confidence": confidence(0.8),
		},
		"personality": map[string]any{
			"summary":    fmt.Sprintf("Your %s sun shapes your identity while your %s moon colours your emotional life.", sun, moon),
			"confidence": confidence(0.8),
		},
		"planetary_positions": []any{
			map[string]any{"planet": "Sun", "sign": sun, "house": "1st House", "aspect": "Your core identity and life force"},
			map[string]any{"planet": "Moon", "sign": moon, "house": "4th House", "aspect": "Your emotional world and instincts"},
			map[string]any{"planet": "Ascendant", "sign": rising, "house": "1st House", "aspect": "How you appear to others"},
		},
		"career_path":           map[string]any{"confidence": confidence(0.78)},
		"relationship_insights": map[string]any{"confidence": confidence(0.78)},
		"spiritual_message":     map[string]any{"confidence": confidence(0.75)},
	}
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "Seeker"
	}
	return name
}
