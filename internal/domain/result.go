package domain

// Palm line keys used in Result.Lines.
const (
	LineLife  = "lifeLine"
	LineHeart = "heartLine"
	LineHead  = "headLine"
	LineFate  = "fateLine"
)

// QualityAbsent marks a line the reading found missing from the palm.
const QualityAbsent = "Absent"

// Significance levels for special marks.
const (
	SignificanceHigh   = "High"
	SignificanceMedium = "Medium"
	SignificanceLow    = "Low"
)

// Result is the canonical reading shared by every kind and raw schema variant.
type Result struct {
	Kind          ReadingKind      `json:"kind"`
	Lines         map[string]Line  `json:"lines"`
	Traits        []Trait          `json:"traits"`
	Predictions   []Prediction     `json:"predictions"`
	SpecialMarks  []SpecialMark    `json:"specialMarks"`
	Compatibility []Compatibility  `json:"compatibility"`
	Mounts        map[string]Mount `json:"mounts"`
	Hand          HandProfile      `json:"hand"`
	Accuracy      Accuracy         `json:"accuracy"`
	Summary       string           `json:"summary"`
	OverallScore  float64          `json:"overallScore"`
	ModelVersion  string           `json:"modelVersion"`

	Numerology *NumerologyProfile `json:"numerology,omitempty"`
	Chart      *ChartProfile      `json:"chart,omitempty"`
}

type Line struct {
	Quality string  `json:"quality"`
	Score   float64 `json:"score"`
	Meaning string  `json:"meaning"`
	Details string  `json:"details"`
}

type Trait struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

type Prediction struct {
	Area         string  `json:"area"`
	Timeframe    string  `json:"timeframe"`
	Prediction   string  `json:"prediction"`
	Advice       string  `json:"advice"`
	Confidence   float64 `json:"confidence"`
	LowCertainty bool    `json:"lowCertainty,omitempty"`
}

type SpecialMark struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	Meaning      string `json:"meaning"`
	Significance string `json:"significance"`
}

type Compatibility struct {
	Category    string  `json:"category"`
	MatchScore  float64 `json:"matchScore"`
	Description string  `json:"description"`
}

type Mount struct {
	Development string  `json:"development"`
	Score       float64 `json:"score"`
	Meaning     string  `json:"meaning"`
}

type HandProfile struct {
	DominantHand string `json:"dominantHand"`
	PalmShape    string `json:"palmShape"`
	FingerLength string `json:"fingerLength"`
	HandType     string `json:"handType"`
	Analysis     string `json:"analysis"`
}

// Accuracy reports how confident the reading is in each analysis stage.
type Accuracy struct {
	LineDetection   float64 `json:"lineDetection"`
	PatternAnalysis float64 `json:"patternAnalysis"`
	Interpretation  float64 `json:"interpretation"`
	Overall         float64 `json:"overall"`
}

// NumerologyProfile carries the core numbers behind a numerology reading.
type NumerologyProfile struct {
	LifePath       int    `json:"lifePath"`
	Destiny        int    `json:"destiny"`
	SoulUrge       int    `json:"soulUrge"`
	Personality    int    `json:"personality"`
	MasterNumbers  []int  `json:"masterNumbers"`
	KarmicLessons  []int  `json:"karmicLessons"`
	LuckyNumbers   []int  `json:"luckyNumbers"`
	CalculationLog string `json:"calculationLog"`
}

// ChartProfile carries the placements behind an astrology reading.
type ChartProfile struct {
	SunSign    string   `json:"sunSign"`
	MoonSign   string   `json:"moonSign"`
	RisingSign string   `json:"risingSign"`
	Element    string   `json:"element"`
	Modality   string   `json:"modality"`
	KeyThemes  []string `json:"keyThemes"`
	Strengths  []string `json:"strengths"`
	Challenges []string `json:"challenges"`
	ChartNote  string   `json:"chartNote"`
}
