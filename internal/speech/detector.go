package speech

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

// significanceLevel is the p-value cutoff for a metric change.
const significanceLevel = 0.05

// metricThresholds are the minimum relative changes per metric; a
// statistically significant change below its threshold is noise.
var metricThresholds = map[string]float64{
	"filler_rate":         0.15,
	"formality_score":     0.25,
	"avg_sentence_length": 0.30,
	"lexical_diversity":   0.20,
	"exclamation_rate":    0.50,
	"question_rate":       0.50,
}

// discreteMetrics use a chi-square test on counts; the rest use a
// z-test against an estimated pooled deviation.
var discreteMetrics = map[string]bool{
	"filler_rate":      true,
	"exclamation_rate": true,
	"question_rate":    true,
}

// MetricChange is the comparison of one metric between two windows.
type MetricChange struct {
	Metric         string  `json:"metric_name"`
	Value1         float64 `json:"value1"`
	Value2         float64 `json:"value2"`
	RelativeChange float64 `json:"relative_change"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"is_significant"`
}

// ChangeAlert is a detected speech change between adjacent windows.
type ChangeAlert struct {
	CharacterID     int64                   `json:"character_id"`
	CharacterName   string                  `json:"character_name"`
	Window1Chapters string                  `json:"window1_chapters"`
	Window2Chapters string                  `json:"window2_chapters"`
	Changes         map[string]MetricChange `json:"changed_metrics"`
	Confidence      float64                 `json:"confidence"`
	Severity        string                  `json:"severity"` // low, medium, high
	Context         *NarrativeContext       `json:"narrative_context,omitempty"`
}

// Detector runs the sliding-window speech-change analysis.
type Detector struct {
	WindowSize    int
	Overlap       int
	MinWords      int
	MinConfidence float64

	metrics    *MetricsCache
	contextual *ContextualAnalyzer
	logger     *zap.Logger
}

// NewDetector builds a detector sharing the process-wide metrics
// cache.
func NewDetector(windowSize, overlap, minWords int, minConfidence float64, metrics *MetricsCache, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		WindowSize:    windowSize,
		Overlap:       overlap,
		MinWords:      minWords,
		MinConfidence: minConfidence,
		metrics:       metrics,
		contextual:    NewContextualAnalyzer(),
		logger:        logger,
	}
}

// DetectChanges compares each adjacent window pair of a character's
// dialogue. chapterTexts (by chapter number) feed the contextual
// analyzer that scans the gap between windows for dramatic events.
//
// A character with fewer than two valid windows produces no alert.
func (d *Detector) DetectChanges(
	characterID int64,
	characterName string,
	dialoguesByChapter map[int][]string,
	chapterCount int,
	chapterTexts map[int]string,
) []ChangeAlert {
	windows := SlidingWindows(characterID, characterName, dialoguesByChapter,
		chapterCount, d.WindowSize, d.Overlap, d.MinWords)
	if len(windows) < 2 {
		d.logger.Debug("not enough speech windows",
			zap.String("character", characterName), zap.Int("windows", len(windows)))
		return nil
	}

	metricsPerWindow := make([]map[string]float64, len(windows))
	for i, w := range windows {
		metricsPerWindow[i] = d.metrics.Compute(w.Dialogues)
	}

	var alerts []ChangeAlert
	for i := 0; i < len(windows)-1; i++ {
		if alert := d.compareWindows(windows[i], metricsPerWindow[i],
			windows[i+1], metricsPerWindow[i+1], chapterTexts); alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	d.logger.Info("speech change detection done",
		zap.String("character", characterName),
		zap.Int("windows", len(windows)),
		zap.Int("alerts", len(alerts)))
	return alerts
}

func (d *Detector) compareWindows(w1 *Window, m1 map[string]float64, w2 *Window, m2 map[string]float64, chapterTexts map[int]string) *ChangeAlert {
	changes := make(map[string]MetricChange)
	for _, metric := range TrackedMetrics {
		change := DetectMetricChange(metric, m1[metric], m2[metric], w1.TotalWords, w2.TotalWords)
		if change.Significant {
			changes[metric] = change
		}
	}
	// One shifted metric is not a voice change.
	if len(changes) < 2 {
		return nil
	}

	confidence := changeConfidence(changes, w1.TotalWords, w2.TotalWords,
		w1.DialogueCount(), w2.DialogueCount())
	if confidence < d.MinConfidence {
		return nil
	}

	var context *NarrativeContext
	if chapterTexts != nil {
		var gapTexts []string
		for ch := w1.EndChapter; ch <= w2.StartChapter; ch++ {
			if t, ok := chapterTexts[ch]; ok {
				gapTexts = append(gapTexts, t)
			}
		}
		context = d.contextual.Analyze(gapTexts)
	}

	severity := determineSeverity(changes, confidence, context)

	return &ChangeAlert{
		CharacterID:     w1.CharacterID,
		CharacterName:   w1.CharacterName,
		Window1Chapters: w1.ChapterRange(),
		Window2Chapters: w2.ChapterRange(),
		Changes:         changes,
		Confidence:      confidence,
		Severity:        severity,
		Context:         context,
	}
}

// DetectMetricChange tests one metric between two windows. A change is
// significant when p < 0.05 AND the relative change exceeds the
// per-metric threshold.
func DetectMetricChange(metric string, value1, value2 float64, n1, n2 int) MetricChange {
	var relative float64
	switch {
	case value1 == 0 && value2 == 0:
		relative = 0
	case value1 == 0:
		relative = math.Inf(1)
	default:
		relative = math.Abs(value2-value1) / math.Abs(value1)
	}

	threshold, ok := metricThresholds[metric]
	if !ok {
		threshold = 0.20
	}

	var p float64
	if discreteMetrics[metric] {
		// Rates are per 100 units; convert back to counts.
		count1 := int(value1 / 100 * float64(n1))
		count2 := int(value2 / 100 * float64(n2))
		p = chiSquaredP(count1, n1, count2, n2)
	} else {
		p = zTestP(value1, value2, n1, n2, estimatePooledStd(metric, value1, value2))
	}

	return MetricChange{
		Metric:         metric,
		Value1:         value1,
		Value2:         value2,
		RelativeChange: relative,
		PValue:         p,
		Significant:    p < significanceLevel && relative > threshold,
	}
}

// changeConfidence aggregates significance (30%), sample size capped
// at 500 words (25%), magnitude (25%), dialogue count capped at 50
// lines (10%) and cross-metric consensus (10%).
func changeConfidence(changes map[string]MetricChange, words1, words2, dialogues1, dialogues2 int) float64 {
	if len(changes) == 0 {
		return 0
	}

	var pSum, magSum float64
	for _, c := range changes {
		pSum += c.PValue
		mag := c.RelativeChange
		if math.IsInf(mag, 1) || mag > 1 {
			mag = 1
		}
		magSum += mag
	}
	n := float64(len(changes))

	significance := 1 - pSum/n
	sample := math.Min(1, float64(words1+words2)/2/500)
	magnitude := magSum / n
	dialogue := math.Min(1, float64(dialogues1+dialogues2)/2/50)
	consensus := n / float64(len(TrackedMetrics))

	confidence := 0.30*significance + 0.25*sample + 0.25*magnitude + 0.10*dialogue + 0.10*consensus
	return math.Round(math.Max(0, math.Min(1, confidence))*100) / 100
}

// determineSeverity grades the alert and lowers it one step when a
// detected narrative event explains the change, as decided by
// NarrativeContext.ShouldReduceSeverity.
func determineSeverity(changes map[string]MetricChange, confidence float64, context *NarrativeContext) string {
	var severity string
	switch {
	case confidence > 0.85 && len(changes) >= 4:
		severity = "high"
	case confidence > 0.7 && len(changes) >= 3:
		severity = "medium"
	default:
		severity = "low"
	}

	if context != nil && context.HasDramaticEvent && context.ShouldReduceSeverity(confidence) {
		switch severity {
		case "high":
			severity = "medium"
		case "medium":
			severity = "low"
		}
	}
	return severity
}

// ChangedMetricNames lists the changed metrics in stable order.
func (a *ChangeAlert) ChangedMetricNames() []string {
	names := make([]string, 0, len(a.Changes))
	for name := range a.Changes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
