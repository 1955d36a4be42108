package canonical

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"palmreader/internal/divination"
	"palmreader/internal/domain"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return obj
}

func canonicalize(t *testing.T, kind domain.ReadingKind, raw string, hints Hints) *domain.Result {
	t.Helper()
	res, err := New(WithJitter(NoJitter)).Canonicalize(kind, decode(t, raw), hints)
	if err != nil {
		t.Fatalf("Canonicalize(%s, %s): %v", kind, raw, err)
	}
	return res
}

func inRange(v float64) bool { return v >= 0 && v <= 100 && !math.IsNaN(v) }

func assertComplete(t *testing.T, res *domain.Result) {
	t.Helper()
	if res.Lines == nil || res.Traits == nil || res.Predictions == nil || res.SpecialMarks == nil || res.Compatibility == nil || res.Mounts == nil {
		t.Fatalf("result has nil collections: %+v", res)
	}
	for key, l := range res.Lines {
		if !inRange(l.Score) {
			t.Errorf("line %s score %v out of range", key, l.Score)
		}
		if l.Meaning == "" || l.Details == "" || l.Quality == "" {
			t.Errorf("line %s has empty text: %+v", key, l)
		}
		if l.Quality == domain.QualityAbsent && key != domain.LineFate {
			t.Errorf("line %s reported absent", key)
		}
	}
	for _, tr := range res.Traits {
		if !inRange(tr.Score) || tr.Description == "" {
			t.Errorf("bad trait %+v", tr)
		}
	}
	for _, p := range res.Predictions {
		if !inRange(p.Confidence) || p.Prediction == "" || p.Advice == "" || p.Timeframe == "" {
			t.Errorf("bad prediction %+v", p)
		}
		if !p.LowCertainty && p.Confidence < 50 {
			t.Errorf("prediction %s below floor: %v", p.Area, p.Confidence)
		}
	}
	for _, m := range res.SpecialMarks {
		switch m.Significance {
		case domain.SignificanceHigh, domain.SignificanceMedium, domain.SignificanceLow:
		default:
			t.Errorf("mark %+v has significance %q", m, m.Significance)
		}
	}
	for i, c := range res.Compatibility {
		if !inRange(c.MatchScore) {
			t.Errorf("compatibility %+v out of range", c)
		}
		if i > 0 && res.Compatibility[i-1].MatchScore < c.MatchScore {
			t.Errorf("compatibility not sorted at %d: %+v", i, res.Compatibility)
		}
	}
	for key, m := range res.Mounts {
		if !inRange(m.Score) {
			t.Errorf("mount %s out of range", key)
		}
	}
	a := res.Accuracy
	for _, v := range []float64{a.LineDetection, a.PatternAnalysis, a.Interpretation, a.Overall, res.OverallScore} {
		if !inRange(v) {
			t.Errorf("score %v out of range in %+v", v, res)
		}
	}
	if res.Summary == "" {
		t.Error("summary is empty")
	}
}

func TestAbsentFateLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		raw  string
	}{
		{"structured absent", `{"palm_lines": {"fate_line": {"strength": "Absent"}}}`},
		{"structured none", `{"palm_lines": {"fate_line": {"strength": "None"}}}`},
		{"structured not present", `{"palm_lines": {"fate_line": {"strength": "not present", "type": "Straight"}}}`},
		{"legacy none", `{"lines": {"fateLine": {"quality": "None", "score": 0}}}`},
		{"legacy not present", `{"lines": {"fateLine": {"quality": "Not Present"}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := canonicalize(t, domain.KindPalm, tc.raw, Hints{})
			fate := res.Lines[domain.LineFate]
			if fate.Quality != domain.QualityAbsent || fate.Score != 0 {
				t.Fatalf("fateLine = %+v, want Absent/0", fate)
			}
			if fate.Meaning == "" || fate.Details == "" {
				t.Fatalf("absent fate line needs narrative: %+v", fate)
			}
			assertComplete(t, res)
		})
	}
}

func TestAbsentFateLineExcludedFromAverages(t *testing.T) {
	t.Parallel()
	raw := `{"palm_lines": {
		"life_line": {"quality_score": "80%"},
		"head_line": {"quality_score": 0.7},
		"heart_line": {"quality_score": 60},
		"fate_line": {"strength": "Strong", "metrics": {"present": "no"}}
	}}`
	res := canonicalize(t, domain.KindPalm, raw, Hints{})
	if res.Lines[domain.LineFate].Score != 0 {
		t.Fatalf("fate line with present=no should be absent: %+v", res.Lines[domain.LineFate])
	}
	if res.Accuracy.LineDetection != 70 {
		t.Fatalf("LineDetection = %v, want 70 (mean of 80, 70, 60)", res.Accuracy.LineDetection)
	}
}

func TestLineScorePrecedence(t *testing.T) {
	t.Parallel()
	raw := `{"palm_lines": {
		"life_line": {"strength": "Strong", "metrics": {"clarity": "deep", "length": "full", "depth": "deep", "breaks": "none", "calculated_score": "77%"}},
		"head_line": {"strength": "Moderate", "metrics": {"clarity": "moderate", "depth": "moderate", "continuity": "unbroken", "curvature": "curved"}},
		"heart_line": {"strength": "Faint"},
		"fate_line": {"strength": "Present", "quality_score": "0%", "metrics": {"clarity": "clear", "depth": "shallow"}}
	}}`
	res := canonicalize(t, domain.KindPalm, raw, Hints{})
	cases := map[string]float64{
		domain.LineLife:  77,
		domain.LineHead:  78.8,
		domain.LineHeart: 35,
		domain.LineFate:  67.5,
	}
	for key, want := range cases {
		if got := res.Lines[key].Score; got != want {
			t.Errorf("%s score = %v, want %v", key, got, want)
		}
	}
	if q := res.Lines[domain.LineHead].Quality; q != "Moderate" {
		t.Errorf("head quality = %q", q)
	}
}

func TestEmptyPalmUsesBlendAndDefaults(t *testing.T) {
	t.Parallel()
	res := canonicalize(t, domain.KindPalm, `{}`, Hints{})
	assertComplete(t, res)
	if len(res.Lines) != 4 || len(res.Mounts) != 6 {
		t.Fatalf("expected 4 lines and 6 mounts, got %d/%d", len(res.Lines), len(res.Mounts))
	}
	if got := res.Lines[domain.LineLife]; got.Score != 55 || got.Details != noMetricDetails {
		t.Fatalf("missing life line = %+v", got)
	}
	if len(res.Traits) != len(defaultTraits) {
		t.Fatalf("traits = %+v", res.Traits)
	}
	if res.OverallScore != 56.7 {
		t.Fatalf("OverallScore = %v, want 56.7", res.OverallScore)
	}
	wantConfidence := []float64{50, 56.5, 60, 50}
	for i, p := range res.Predictions[:4] {
		if p.Area != areaTitles[predictionAreas[i]] || p.Confidence != wantConfidence[i] {
			t.Errorf("prediction %d = %s/%v, want %s/%v", i, p.Area, p.Confidence, areaTitles[predictionAreas[i]], wantConfidence[i])
		}
	}
	want := domain.Accuracy{LineDetection: 55, PatternAnalysis: 49, Interpretation: 46, Overall: 50}
	if res.Accuracy != want {
		t.Fatalf("Accuracy = %+v, want %+v", res.Accuracy, want)
	}
	if res.Hand.DominantHand != "Right" || res.Hand.PalmShape != "Square" || res.Hand.FingerLength != "Medium" {
		t.Fatalf("hand defaults = %+v", res.Hand)
	}
	if top := res.Compatibility[0]; top.Category != "Earth" || top.MatchScore != 90 {
		t.Fatalf("top compatibility = %+v", top)
	}
}

func TestSuppliedOverallScoreWins(t *testing.T) {
	t.Parallel()
	res := canonicalize(t, domain.KindPalm, `{"palm_lines": {}, "hand_type_analysis": {"overall_score": "82%"}}`, Hints{})
	if res.OverallScore != 82 {
		t.Fatalf("OverallScore = %v, want 82", res.OverallScore)
	}
	res = canonicalize(t, domain.KindPalm, `{"palm_lines": {}, "hand_type_analysis": {"overall_score": 0}}`, Hints{})
	if res.OverallScore < overallMin || res.OverallScore > overallMax {
		t.Fatalf("derived OverallScore = %v out of blend range", res.OverallScore)
	}
}

func TestLegacyAndStructuredShareShape(t *testing.T) {
	t.Parallel()
	legacy := canonicalize(t, domain.KindPalm, `{
		"lines": {"lifeLine": {"quality": "Strong", "score": 82}, "heartLine": {"quality": "Curved"}, "fateLine": {"quality": "Absent"}},
		"personality": {"traits": [{"name": "Leadership", "score": 0.74}, {"name": "Patience"}], "palmShape": "Fire", "mounts": {"apollo": "High"}},
		"predictions": [{"area": "Career", "confidence": 12, "prediction": "Growth ahead"}, {"area": "Travel", "confidence": 70}],
		"specialMarks": [{"name": "Stars", "significance": "high"}],
		"overallScore": "0"
	}`, Hints{})
	structured := canonicalize(t, domain.KindPalm, `{
		"palm_lines": {"life_line": {"strength": "Strong", "quality_score": "82%"}, "heart_line": {"strength": "Curved"}},
		"personality_traits": {"leadership": {"percentage": "74%"}},
		"physical_characteristics": {"palm_shape": "Fire", "mounts": {"sun": {"development": "High"}}},
		"special_marks": [{"type": "star", "impact_level": "High"}]
	}`, Hints{})
	for _, res := range []*domain.Result{legacy, structured} {
		assertComplete(t, res)
		if len(res.Lines) != 4 || len(res.Mounts) != 6 {
			t.Fatalf("lines/mounts = %d/%d", len(res.Lines), len(res.Mounts))
		}
		if res.Lines[domain.LineFate].Quality != domain.QualityAbsent {
			t.Fatalf("fate line = %+v", res.Lines[domain.LineFate])
		}
		if res.Lines[domain.LineLife].Score != 82 {
			t.Fatalf("life score = %v", res.Lines[domain.LineLife].Score)
		}
		if res.Mounts["sun"].Development != levelHigh || res.Mounts["sun"].Score != 85 {
			t.Fatalf("sun mount = %+v", res.Mounts["sun"])
		}
		if res.Traits[0].Name != "Leadership" || res.Traits[0].Score != 74 {
			t.Fatalf("first trait = %+v", res.Traits[0])
		}
		if len(res.SpecialMarks) != 1 || res.SpecialMarks[0].Significance != levelHigh {
			t.Fatalf("marks = %+v", res.SpecialMarks)
		}
		for i, area := range predictionAreas {
			if res.Predictions[i].Area != areaTitles[area] {
				t.Fatalf("prediction %d area = %q", i, res.Predictions[i].Area)
			}
		}
	}
	if legacy.Predictions[0].Prediction != "Growth ahead" || legacy.Predictions[0].Confidence < 50 {
		t.Fatalf("legacy career prediction = %+v", legacy.Predictions[0])
	}
	if last := legacy.Predictions[len(legacy.Predictions)-1]; last.Area != "Travel" || last.Confidence != 70 {
		t.Fatalf("extra prediction area not kept: %+v", last)
	}
	if patience := legacy.Traits[1]; patience.Score < traitMin || patience.Score > traitMax {
		t.Fatalf("unknown legacy trait score = %v", patience.Score)
	}
}

func TestPredictionFloorAndLowCertainty(t *testing.T) {
	t.Parallel()
	res := canonicalize(t, domain.KindPalm, `{"palm_lines": {}, "predictions": {
		"career": {"confidence": "40%"},
		"health": {"confidence": 0.2, "low_certainty": true},
		"finances": {"confidence": 45}
	}}`, Hints{})
	byArea := map[string]domain.Prediction{}
	for _, p := range res.Predictions {
		byArea[p.Area] = p
	}
	if c := byArea["Career"].Confidence; c != 50 {
		t.Errorf("career confidence = %v, want floor 50", c)
	}
	if h := byArea["Health"]; !h.LowCertainty || h.Confidence != 20 {
		t.Errorf("low certainty health = %+v", h)
	}
	if c := byArea["Finances"].Confidence; c != 50 {
		t.Errorf("finances confidence = %v, want 50", c)
	}
}

func TestTraitClamp(t *testing.T) {
	t.Parallel()
	high := `{"palm_lines": {"head_line": {"strength": "Strong", "metrics": {"clarity": "deep", "curvature": "curved"}}, "heart_line": {"strength": "Strong"}, "fate_line": {"strength": "Strong"}, "life_line": {"strength": "Strong"}},
		"personality_traits": {"creative": {}, "analytical": {}, "emotional": {}, "leadership": {}, "practical": {}, "intuitive": {}},
		"physical_characteristics": {"palm_shape": "Fire", "finger_length": "Long", "mounts": {"jupiter": "High", "moon": "High", "saturn": "High", "venus": "High", "mercury": "High"}}}`
	low := `{"palm_lines": {"head_line": {"strength": "Faint"}, "heart_line": {"strength": "Weak"}, "life_line": {"strength": "Weak"}},
		"personality": {"traits": ["Leadership", "Creativity", "Intuition", "Communication", "Determination"]},
		"physical_characteristics": {"palm_shape": "Water", "finger_length": "Short", "mounts": {"jupiter": "Low", "moon": "Low", "saturn": "Low", "venus": "Low", "mercury": "Low"}}}`
	for _, raw := range []string{high, low} {
		res := canonicalize(t, domain.KindPalm, raw, Hints{})
		if len(res.Traits) < 5 {
			t.Fatalf("traits = %+v", res.Traits)
		}
		for _, tr := range res.Traits {
			if tr.Score < traitMin || tr.Score > traitMax {
				t.Errorf("trait %s = %v outside [35,95]", tr.Name, tr.Score)
			}
		}
	}
	res := canonicalize(t, domain.KindPalm, high, Hints{})
	if res.Traits[3].Name != "Leadership" || res.Traits[3].Score != 95 {
		t.Fatalf("leadership = %+v, want clamped 95", res.Traits[3])
	}
}

func TestMarksAdjustmentBounded(t *testing.T) {
	t.Parallel()
	many := make([]domain.SpecialMark, 0, 10)
	for i := 0; i < 5; i++ {
		many = append(many, domain.SpecialMark{Name: "Star", Significance: levelHigh})
	}
	if got := marksAdjustment(many); got != marksAdjustmentMax {
		t.Fatalf("positive adjustment = %v, want %v", got, marksAdjustmentMax)
	}
	many = many[:0]
	for i := 0; i < 5; i++ {
		many = append(many, domain.SpecialMark{Name: "Island on life line", Significance: levelHigh})
	}
	if got := marksAdjustment(many); got != marksAdjustmentMin {
		t.Fatalf("negative adjustment = %v, want %v", got, marksAdjustmentMin)
	}
	mixed := []domain.SpecialMark{
		{Name: "Triangle", Significance: levelMedium},
		{Name: "Fork", Significance: levelLow},
		{Name: "Grill", Significance: levelLow},
	}
	if got := marksAdjustment(mixed); got != 5 {
		t.Fatalf("mixed adjustment = %v, want 5", got)
	}
}

func TestCompatibilityJitterIsBounded(t *testing.T) {
	t.Parallel()
	for _, j := range []int{10, -10} {
		e := New(WithJitter(func() int { return j }))
		res, err := e.Canonicalize(domain.KindPalm, map[string]any{}, Hints{})
		if err != nil {
			t.Fatalf("Canonicalize: %v", err)
		}
		want := 93.0
		if j < 0 {
			want = 87
		}
		if top := res.Compatibility[0]; top.Category != "Earth" || top.MatchScore != want {
			t.Fatalf("jitter %d: top = %+v, want Earth %v", j, top, want)
		}
	}
}

func TestSeededJitterIsReproducible(t *testing.T) {
	t.Parallel()
	a, b := SeededJitter(42), SeededJitter(42)
	for i := 0; i < 50; i++ {
		x, y := a(), b()
		if x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
		if x < -maxJitter || x > maxJitter {
			t.Fatalf("draw %d out of range: %d", i, x)
		}
	}
}

func TestPercentParsing(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want Percent
	}{
		{`72`, Percent{72, true}},
		{`0.72`, Percent{72, true}},
		{`"65%"`, Percent{65, true}},
		{`"0.5%"`, Percent{0.5, true}},
		{`" 0.4 "`, Percent{40, true}},
		{`140`, Percent{100, true}},
		{`-5`, Percent{0, true}},
		{`"N/A"`, Percent{}},
		{`null`, Percent{}},
		{`{"x": 1}`, Percent{}},
	}
	for _, tc := range cases {
		var p Percent
		if err := json.Unmarshal([]byte(tc.raw), &p); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tc.raw, err)
		}
		if p != tc.want {
			t.Errorf("Percent(%s) = %+v, want %+v", tc.raw, p, tc.want)
		}
	}
}

func TestWrongShapedFieldsAreTolerated(t *testing.T) {
	t.Parallel()
	raw := `{"palm_lines": {"life_line": "strong", "head_line": [1, 2]},
		"personality_traits": ["creative"],
		"physical_characteristics": "square",
		"predictions": "none",
		"special_marks": {"type": "star"},
		"hand_type_analysis": 7}`
	assertComplete(t, canonicalize(t, domain.KindPalm, raw, Hints{}))
}

func TestNumerologyFromPayload(t *testing.T) {
	t.Parallel()
	res := canonicalize(t, domain.KindNumerology, `{"core_numbers": {"life_path": {"number": 11, "meaning": "Illuminator"}, "destiny": 5, "soul_urge": "40"}}`, Hints{})
	assertComplete(t, res)
	n := res.Numerology
	if n == nil || n.LifePath != 11 || n.Destiny != 5 || n.SoulUrge != 0 {
		t.Fatalf("numerology profile = %+v", n)
	}
	if len(res.SpecialMarks) == 0 || res.SpecialMarks[0].Name != "Master Number 11" || res.SpecialMarks[0].Meaning != "Illuminator" {
		t.Fatalf("marks = %+v", res.SpecialMarks)
	}
	if res.Traits[0].Name != "Spiritual" || res.Traits[0].Score != 75 {
		t.Fatalf("traits = %+v", res.Traits)
	}
	if top := res.Compatibility[0]; top.MatchScore != 88 {
		t.Fatalf("top compatibility = %+v", top)
	}
	if got := n.LuckyNumbers; len(got) != 3 || got[0] != 11 {
		t.Fatalf("lucky numbers = %v", got)
	}
	if len(res.Lines) != 0 || len(res.Mounts) != 0 {
		t.Fatalf("numerology should carry empty lines and mounts")
	}
}

func TestNumerologyFallsBackToHints(t *testing.T) {
	t.Parallel()
	chart := divination.ComputeNumerology("Ada Lovelace", time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC))
	res := canonicalize(t, domain.KindNumerology, `{"core_numbers": {"life_path": 14}}`, Hints{Numerology: &chart})
	assertComplete(t, res)
	if res.Numerology.LifePath != chart.LifePath {
		t.Fatalf("LifePath = %d, want helper value %d", res.Numerology.LifePath, chart.LifePath)
	}
	karmic := 0
	for _, m := range res.SpecialMarks {
		if strings.HasPrefix(m.Name, "Karmic Lesson") {
			karmic++
		}
	}
	if karmic != len(chart.KarmicLessons) {
		t.Fatalf("karmic marks = %d, want %d", karmic, len(chart.KarmicLessons))
	}
}

func TestAstrologyUsesChartHints(t *testing.T) {
	t.Parallel()
	chart, err := divination.ComputeChart(time.Date(1990, 8, 1, 0, 0, 0, 0, time.UTC), "", "")
	if err != nil {
		t.Fatalf("ComputeChart: %v", err)
	}
	res := canonicalize(t, domain.KindAstrology, `{"sun_sign": "Unknown", "planetary_positions": [{"planet": "Sun", "sign": "Leo"}, {"planet": "Venus"}]}`, Hints{Chart: &chart})
	assertComplete(t, res)
	if res.Chart.SunSign != "Leo" || res.Chart.Element != "Fire" {
		t.Fatalf("chart = %+v", res.Chart)
	}
	if len(res.Traits) != 4 || res.Traits[0].Name != "Ambitious" || res.Traits[0].Score != 76 {
		t.Fatalf("traits = %+v", res.Traits)
	}
	if len(res.SpecialMarks) != 2 || res.SpecialMarks[0].Significance != levelHigh || res.SpecialMarks[1].Significance != levelMedium {
		t.Fatalf("marks = %+v", res.SpecialMarks)
	}
	if len(res.Compatibility) != 11 || res.Compatibility[0].MatchScore != 90 {
		t.Fatalf("compatibility = %+v", res.Compatibility)
	}
}

func TestAstrologySectionsFillPredictions(t *testing.T) {
	t.Parallel()
	res := canonicalize(t, domain.KindAstrology, `{
		"sun_sign": "cancer",
		"overview": {"summary": "Calm year", "confidence": 0.8},
		"career_path": {"text": "Lead with care", "confidence": 0.9},
		"life_predictions": [{"area": "Spiritual Growth", "timeframe": "Ongoing", "prediction": "Trust yourself", "confidence": 0.87}]
	}`, Hints{})
	if res.Summary != "Calm year" {
		t.Fatalf("summary = %q", res.Summary)
	}
	if p := res.Predictions[0]; p.Prediction != "Lead with care" || p.Confidence != 90 {
		t.Fatalf("career = %+v", p)
	}
	if p := res.Predictions[2]; p.Confidence != 80 {
		t.Fatalf("health = %+v", p)
	}
	if last := res.Predictions[len(res.Predictions)-1]; last.Area != "Spiritual Growth" || last.Confidence != 87 {
		t.Fatalf("extra prediction = %+v", last)
	}
}

func TestCanonicalizeRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	if _, err := New().Canonicalize("tarot", map[string]any{}, Hints{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
