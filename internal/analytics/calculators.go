package analytics

import (
	"math"
	"sort"

	"typewitness/internal/event"
)

// Thresholds for the built-in calculators. Empirically derived from human
// typing observation; a sustained rate above a dozen characters per second
// already exceeds a 70 WPM typist.
const (
	// PauseThresholdMs is the inter-keystroke gap counted as a pause.
	PauseThresholdMs = 2000.0

	// BurstGapMs is the maximum gap between keystrokes inside one burst.
	BurstGapMs = 1000

	// MinBurstKeystrokes is the minimum burst length considered for the
	// peak-rate metric. Shorter runs give unstable rate estimates.
	MinBurstKeystrokes = 5
)

// registerBuiltins registers the built-in metric set in fixed order. Called
// exactly once when the default registry is built; a duplicate id here is a
// programming error and panics at startup.
//
// Every built-in returns 0 on empty input. Rate metrics additionally return
// 0 when the observed duration is zero rather than producing NaN or Inf.
func registerBuiltins(r *Registry) {
	builtins := []Metric{
		{ID: "total-keystrokes", Description: "Number of keydown events", Compute: TotalKeystrokes},
		{ID: "typed-characters", Description: "Characters inserted through input events", Compute: TypedCharacters},
		{ID: "deleted-characters", Description: "Characters removed through delete events", Compute: DeletedCharacters},
		{ID: "deletion-ratio", Description: "Delete events relative to keydown events", Compute: DeletionRatio},
		{ID: "typing-duration-ms", Description: "Span from first to last event in milliseconds", Compute: TypingDurationMs},
		{ID: "keystrokes-per-minute", Description: "Keydown rate over the session span", Compute: KeystrokesPerMinute},
		{ID: "mean-iki-ms", Description: "Mean inter-keystroke interval", Compute: MeanIKIMs},
		{ID: "median-iki-ms", Description: "Median inter-keystroke interval", Compute: MedianIKIMs},
		{ID: "iki-stddev-ms", Description: "Standard deviation of inter-keystroke intervals", Compute: IKIStdDevMs},
		{ID: "burstiness", Description: "Coefficient of variation of inter-keystroke intervals", Compute: Burstiness},
		{ID: "pause-count", Description: "Inter-keystroke gaps above the pause threshold", Compute: PauseCount},
		{ID: "longest-pause-ms", Description: "Longest inter-keystroke gap", Compute: LongestPauseMs},
		{ID: "event-type-entropy", Description: "Shannon entropy of the event type distribution", Compute: EventTypeEntropy},
		{ID: "paste-count", Description: "Number of paste events", Compute: PasteCount},
		{ID: "pasted-characters", Description: "Characters inserted through paste events", Compute: PastedCharacters},
		{ID: "paste-char-ratio", Description: "Pasted characters relative to all inserted characters", Compute: PasteCharRatio},
		{ID: "copy-cut-count", Description: "Number of copy and cut events", Compute: CopyCutCount},
		{ID: "focus-changes", Description: "Number of focus and blur events", Compute: FocusChanges},
		{ID: "formatting-actions", Description: "Number of formatting events", Compute: FormattingActions},
		{ID: "structural-actions", Description: "Number of list/structure events", Compute: StructuralActions},
		{ID: "find-replace-actions", Description: "Number of find and replace events", Compute: FindReplaceActions},
		{ID: "selection-changes", Description: "Number of select events", Compute: SelectionChanges},
		{ID: "max-burst-cps", Description: "Peak sustained keystroke rate in characters per second", Compute: MaxBurstCPS},
	}

	for _, m := range builtins {
		r.MustRegister(m)
	}
}

// countType counts events with the given type tag.
func countType(events []event.TrackerEvent, t event.Type) float64 {
	n := 0
	for _, e := range events {
		if e.EventType == t {
			n++
		}
	}
	return float64(n)
}

// countGroup counts events whose type falls in the given group.
func countGroup(events []event.TrackerEvent, g event.Group) float64 {
	n := 0
	for _, e := range events {
		if event.GroupOf(e.EventType) == g {
			n++
		}
	}
	return float64(n)
}

// interKeyIntervals returns the gaps in milliseconds between consecutive
// keydown events. Sequences are stored in non-decreasing timestamp order,
// so no sorting is needed here.
func interKeyIntervals(events []event.TrackerEvent) []float64 {
	var intervals []float64
	last := int64(-1)
	for _, e := range events {
		if e.EventType != event.TypeKeyDown {
			continue
		}
		if last >= 0 {
			intervals = append(intervals, float64(e.Timestamp-last))
		}
		last = e.Timestamp
	}
	return intervals
}

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median returns the median, 0 for an empty slice.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// stddev returns the population standard deviation, 0 for fewer than two
// values.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// shannonEntropy calculates Shannon entropy from a histogram.
// Formula: H = -sum (c_j/n) * log2(c_j/n) for non-zero bins
func shannonEntropy(histogram []int) float64 {
	n := 0
	for _, count := range histogram {
		n += count
	}
	if n == 0 {
		return 0
	}

	entropy := 0.0
	nFloat := float64(n)
	for _, count := range histogram {
		if count > 0 {
			p := float64(count) / nFloat
			entropy -= p * math.Log2(p)
		}
	}

	return entropy
}

// TotalKeystrokes counts keydown events.
func TotalKeystrokes(events []event.TrackerEvent) (float64, error) {
	return countType(events, event.TypeKeyDown), nil
}

// TypedCharacters sums the rune counts of input-event text payloads.
func TypedCharacters(events []event.TrackerEvent) (float64, error) {
	n := 0
	for _, e := range events {
		if e.EventType == event.TypeInput {
			n += e.TextLen()
		}
	}
	return float64(n), nil
}

// DeletedCharacters sums the removed text of delete events. A delete event
// without a text payload counts as one character.
func DeletedCharacters(events []event.TrackerEvent) (float64, error) {
	n := 0
	for _, e := range events {
		if e.EventType != event.TypeDelete {
			continue
		}
		if l := e.TextLen(); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return float64(n), nil
}

// DeletionRatio is delete events over keydown events. Human revision
// produces a steady nonzero ratio; replayed or pasted text often shows none.
func DeletionRatio(events []event.TrackerEvent) (float64, error) {
	keydowns := countType(events, event.TypeKeyDown)
	if keydowns == 0 {
		return 0, nil
	}
	return countType(events, event.TypeDelete) / keydowns, nil
}

// TypingDurationMs is the span from the first to the last event.
func TypingDurationMs(events []event.TrackerEvent) (float64, error) {
	if len(events) < 2 {
		return 0, nil
	}
	return float64(events[len(events)-1].Timestamp - events[0].Timestamp), nil
}

// KeystrokesPerMinute is the keydown rate over the session span, 0 when the
// span is zero.
func KeystrokesPerMinute(events []event.TrackerEvent) (float64, error) {
	durMs, _ := TypingDurationMs(events)
	if durMs <= 0 {
		return 0, nil
	}
	return countType(events, event.TypeKeyDown) / (durMs / 60000.0), nil
}

// MeanIKIMs is the mean gap between consecutive keydown events.
func MeanIKIMs(events []event.TrackerEvent) (float64, error) {
	return mean(interKeyIntervals(events)), nil
}

// MedianIKIMs is the median gap between consecutive keydown events.
func MedianIKIMs(events []event.TrackerEvent) (float64, error) {
	return median(interKeyIntervals(events)), nil
}

// IKIStdDevMs is the standard deviation of inter-keystroke gaps.
func IKIStdDevMs(events []event.TrackerEvent) (float64, error) {
	return stddev(interKeyIntervals(events)), nil
}

// Burstiness is the coefficient of variation of inter-keystroke gaps.
// Human typing is bursty (CV near or above 1); scripted input with uniform
// delays sits close to 0.
func Burstiness(events []event.TrackerEvent) (float64, error) {
	intervals := interKeyIntervals(events)
	m := mean(intervals)
	if m == 0 {
		return 0, nil
	}
	return stddev(intervals) / m, nil
}

// PauseCount counts inter-keystroke gaps above the pause threshold.
func PauseCount(events []event.TrackerEvent) (float64, error) {
	n := 0
	for _, iki := range interKeyIntervals(events) {
		if iki > PauseThresholdMs {
			n++
		}
	}
	return float64(n), nil
}

// LongestPauseMs is the largest inter-keystroke gap.
func LongestPauseMs(events []event.TrackerEvent) (float64, error) {
	longest := 0.0
	for _, iki := range interKeyIntervals(events) {
		if iki > longest {
			longest = iki
		}
	}
	return longest, nil
}

// EventTypeEntropy is the Shannon entropy of the event type histogram.
// A real writing session mixes keystrokes, deletions, selections and
// formatting; a single-type stream (e.g. nothing but input events) scores
// near 0.
func EventTypeEntropy(events []event.TrackerEvent) (float64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	counts := make(map[event.Type]int)
	for _, e := range events {
		counts[e.EventType]++
	}

	// Sum in sorted type order. Float addition is not associative, so map
	// iteration order would make repeated runs drift in the last bits.
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	histogram := make([]int, 0, len(types))
	for _, t := range types {
		histogram = append(histogram, counts[event.Type(t)])
	}
	return shannonEntropy(histogram), nil
}

// PasteCount counts paste events.
func PasteCount(events []event.TrackerEvent) (float64, error) {
	return countType(events, event.TypePaste), nil
}

// PastedCharacters sums the rune counts of paste-event text payloads.
func PastedCharacters(events []event.TrackerEvent) (float64, error) {
	n := 0
	for _, e := range events {
		if e.EventType == event.TypePaste {
			n += e.TextLen()
		}
	}
	return float64(n), nil
}

// PasteCharRatio is pasted characters over all inserted characters
// (typed + pasted), 0 when nothing was inserted.
func PasteCharRatio(events []event.TrackerEvent) (float64, error) {
	typed, _ := TypedCharacters(events)
	pasted, _ := PastedCharacters(events)
	total := typed + pasted
	if total == 0 {
		return 0, nil
	}
	return pasted / total, nil
}

// CopyCutCount counts copy and cut events.
func CopyCutCount(events []event.TrackerEvent) (float64, error) {
	return countType(events, event.TypeCopy) + countType(events, event.TypeCut), nil
}

// FocusChanges counts focus and blur events.
func FocusChanges(events []event.TrackerEvent) (float64, error) {
	return countType(events, event.TypeFocus) + countType(events, event.TypeBlur), nil
}

// FormattingActions counts events in the formatting group.
func FormattingActions(events []event.TrackerEvent) (float64, error) {
	return countGroup(events, event.GroupFormatting), nil
}

// StructuralActions counts events in the structural group.
func StructuralActions(events []event.TrackerEvent) (float64, error) {
	return countGroup(events, event.GroupStructural), nil
}

// FindReplaceActions counts events in the find/replace group.
func FindReplaceActions(events []event.TrackerEvent) (float64, error) {
	return countGroup(events, event.GroupFindReplace), nil
}

// SelectionChanges counts select events.
func SelectionChanges(events []event.TrackerEvent) (float64, error) {
	return countType(events, event.TypeSelect), nil
}

// MaxBurstCPS is the peak sustained keystroke rate. Keydown events are
// grouped into bursts separated by gaps above BurstGapMs; the fastest burst
// of at least MinBurstKeystrokes with a nonzero span sets the value.
// Sustained rates above ~12 keystrokes per second exceed what a fast human
// typist produces.
func MaxBurstCPS(events []event.TrackerEvent) (float64, error) {
	var timestamps []int64
	for _, e := range events {
		if e.EventType == event.TypeKeyDown {
			timestamps = append(timestamps, e.Timestamp)
		}
	}
	if len(timestamps) < MinBurstKeystrokes {
		return 0, nil
	}

	maxRate := 0.0
	start := 0
	for i := 1; i <= len(timestamps); i++ {
		if i < len(timestamps) && timestamps[i]-timestamps[i-1] <= BurstGapMs {
			continue
		}
		// Burst is timestamps[start:i].
		n := i - start
		if n >= MinBurstKeystrokes {
			span := timestamps[i-1] - timestamps[start]
			if span > 0 {
				rate := float64(n-1) / (float64(span) / 1000.0)
				if rate > maxRate {
					maxRate = rate
				}
			}
		}
		start = i
	}
	return maxRate, nil
}
