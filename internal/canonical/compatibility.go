package canonical

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"palmreader/internal/divination"
	"palmreader/internal/domain"
)

// Compatibility scores stay inside this band after modifiers and jitter.
const (
	compatMin = 45
	compatMax = 95
)

type compatCell struct {
	score       float64
	description string
}

// palmShapes is the iteration order for palm compatibility entries.
var palmShapes = []string{"Square", "Round", "Earth", "Fire", "Water", "Air"}

var palmCompatibility = map[string]map[string]compatCell{
	"square": {
		"earth": {88, "High compatibility - both value stability and practicality"},
		"fire":  {82, "Good compatibility - complementary energies"},
		"round": {65, "Moderate compatibility - different approaches to life"},
		"water": {58, "Moderate compatibility - contrasting natures"},
		"air":   {72, "Fair compatibility - can balance each other"},
	},
	"earth": {
		"square": {88, "High compatibility - shared practical values"},
		"water":  {85, "Strong compatibility - emotional and practical balance"},
		"fire":   {68, "Moderate compatibility - different energy levels"},
		"round":  {75, "Good compatibility - complementary stability"},
		"air":    {62, "Moderate compatibility - different priorities"},
	},
	"fire": {
		"air":    {90, "Excellent compatibility - dynamic and creative partnership"},
		"square": {82, "Good compatibility - fire energizes square's structure"},
		"earth":  {68, "Moderate compatibility - contrasting energies"},
		"water":  {55, "Challenging compatibility - fire and water conflict"},
		"round":  {70, "Fair compatibility - can work with balance"},
	},
	"water": {
		"earth":  {85, "Strong compatibility - emotional depth meets stability"},
		"air":    {78, "Good compatibility - intuitive and intellectual blend"},
		"round":  {80, "Good compatibility - both value emotional connection"},
		"square": {58, "Moderate compatibility - different emotional needs"},
		"fire":   {55, "Challenging compatibility - contrasting natures"},
	},
	"air": {
		"fire":   {90, "Excellent compatibility - intellectual and creative synergy"},
		"water":  {78, "Good compatibility - mental and emotional balance"},
		"round":  {72, "Fair compatibility - can complement each other"},
		"square": {65, "Moderate compatibility - different communication styles"},
		"earth":  {62, "Moderate compatibility - contrasting approaches"},
	},
	"round": {
		"water":  {80, "Good compatibility - both value emotional connection"},
		"earth":  {75, "Good compatibility - stability and warmth"},
		"air":    {72, "Fair compatibility - can balance each other"},
		"fire":   {70, "Fair compatibility - different energy expressions"},
		"square": {65, "Moderate compatibility - contrasting natures"},
	},
}

func palmCell(shape, other string) compatCell {
	if cell, ok := palmCompatibility[strings.ToLower(shape)][strings.ToLower(other)]; ok {
		return cell
	}
	return compatCell{60, fmt.Sprintf("Moderate compatibility with %s hand type", other)}
}

// fingerModifier nudges palm compatibility by finger length.
func fingerModifier(finger, other string) float64 {
	other = strings.ToLower(other)
	switch strings.ToLower(finger) {
	case "long":
		if other == "air" || other == "water" {
			return 5
		}
	case "short":
		if other == "earth" || other == "square" {
			return 5
		}
	case "medium":
		return 2
	}
	return 0
}

func (e *Engine) palmCompatibility(shape, finger string) []domain.Compatibility {
	out := make([]domain.Compatibility, 0, len(palmShapes))
	for _, other := range palmShapes {
		if strings.EqualFold(other, shape) {
			continue
		}
		cell := palmCell(shape, other)
		out = append(out, domain.Compatibility{
			Category:    other,
			MatchScore:  e.jittered(cell.score + fingerModifier(finger, other)),
			Description: cell.description,
		})
	}
	return sortCompatibility(out)
}

// suppliedCompatibility keeps model-provided entries, filling missing scores
// from fallback.
func suppliedCompatibility(raw CompatibilityList, fallback func(category string) compatCell) []domain.Compatibility {
	out := make([]domain.Compatibility, 0, len(raw))
	for _, c := range raw {
		category := c.category()
		if category == "" {
			continue
		}
		cell := fallback(category)
		score := cell.score
		if p := c.score(); p.Positive() {
			score = p.Value
		}
		description := cell.description
		if c.Description.Known() {
			description = c.Description.String()
		}
		out = append(out, domain.Compatibility{
			Category:    titleCase(category),
			MatchScore:  round1(clamp(score, 0, 100)),
			Description: description,
		})
	}
	return sortCompatibility(out)
}

// lifePathGroups are the numbers that resonate with each other.
var lifePathGroups = [][]int{{1, 5, 7}, {2, 4, 8}, {3, 6, 9}}

func lifePathGroup(n int) []int {
	switch n {
	case 11:
		n = 2
	case 22:
		n = 4
	case 33:
		n = 6
	}
	for _, g := range lifePathGroups {
		for _, m := range g {
			if m == n {
				return g
			}
		}
	}
	return nil
}

func containsInt(values []int, n int) bool {
	for _, v := range values {
		if v == n {
			return true
		}
	}
	return false
}

func numberCell(lifePath, destiny, other int) compatCell {
	score := 62.0
	desc := fmt.Sprintf("Life path %d and %d learn from their differences", lifePath, other)
	if containsInt(lifePathGroup(lifePath), other) {
		score = 88
		desc = fmt.Sprintf("Life path %d and %d share a natural rhythm", lifePath, other)
	}
	if destiny != 0 && containsInt(lifePathGroup(destiny), other) {
		score += 4
	}
	return compatCell{score, desc}
}

func (e *Engine) numberCompatibility(lifePath, destiny int) []domain.Compatibility {
	out := make([]domain.Compatibility, 0, 9)
	for other := 1; other <= 9; other++ {
		if other == lifePath {
			continue
		}
		cell := numberCell(lifePath, destiny, other)
		out = append(out, domain.Compatibility{
			Category:    "Life Path " + strconv.Itoa(other),
			MatchScore:  e.jittered(cell.score),
			Description: cell.description,
		})
	}
	return sortCompatibility(out)
}

var complementaryElements = map[string]string{
	"Fire": "Air", "Air": "Fire",
	"Earth": "Water", "Water": "Earth",
}

var challengingElements = map[string]string{
	"Fire": "Water", "Water": "Fire",
	"Earth": "Air", "Air": "Earth",
}

func signCell(sign, other string) compatCell {
	mine, theirs := divination.ElementOf(sign), divination.ElementOf(other)
	var cell compatCell
	switch {
	case mine == "" || theirs == "":
		cell = compatCell{65, fmt.Sprintf("Moderate compatibility with %s", other)}
	case mine == theirs:
		cell = compatCell{90, fmt.Sprintf("Shared %s element creates easy understanding", strings.ToLower(mine))}
	case complementaryElements[mine] == theirs:
		cell = compatCell{82, fmt.Sprintf("%s and %s energies feed each other", mine, theirs)}
	case challengingElements[mine] == theirs:
		cell = compatCell{55, fmt.Sprintf("%s and %s need patience to balance", mine, theirs)}
	default:
		cell = compatCell{65, fmt.Sprintf("%s and %s can complement each other with effort", mine, theirs)}
	}
	if m := divination.ModalityOf(sign); m != "" && m == divination.ModalityOf(other) {
		cell.score -= 3
	}
	return cell
}

func (e *Engine) signCompatibility(sign string) []domain.Compatibility {
	out := make([]domain.Compatibility, 0, len(divination.Signs))
	for _, other := range divination.Signs {
		if other == sign {
			continue
		}
		cell := signCell(sign, other)
		out = append(out, domain.Compatibility{
			Category:    other,
			MatchScore:  e.jittered(cell.score),
			Description: cell.description,
		})
	}
	return sortCompatibility(out)
}

func sortCompatibility(list []domain.Compatibility) []domain.Compatibility {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].MatchScore > list[j].MatchScore
	})
	return list
}
