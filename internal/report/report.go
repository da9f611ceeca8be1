// Package report turns a computed metric set into a human-readable
// authorship assessment.
//
// The report layer sits on top of the analytics result: it never touches
// raw events, only the named metric values, so any consumer holding a
// result mapping can reproduce the assessment.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"typewitness/internal/analytics"
	"typewitness/internal/session"
)

// Default thresholds for anomaly detection. Empirically-derived starting
// points; tune per deployment once baseline data exists.
const (
	// ThresholdPasteRatio flags sessions where most inserted text arrived
	// through paste events.
	ThresholdPasteRatio = 0.5

	// ThresholdBurstCPS flags sustained keystroke rates beyond a fast
	// human typist.
	ThresholdBurstCPS = 12.0

	// ThresholdLowBurstiness flags unnaturally uniform keystroke timing.
	ThresholdLowBurstiness = 0.15

	// ThresholdLowEntropy flags single-mode event streams; real writing
	// mixes keystrokes, deletions, selections and formatting.
	ThresholdLowEntropy = 0.5

	// ThresholdGapMs flags long silent gaps worth noting.
	ThresholdGapMs = 30 * 60 * 1000

	// MinKeystrokesForAssessment is the floor below which no verdict is
	// attempted.
	MinKeystrokesForAssessment = 20

	// AlertCount is the number of alert-severity anomalies that tips the
	// verdict to suspicious.
	AlertCount = 2
)

// Severity indicates the importance level of an anomaly.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
)

// Anomaly is one detected suspicious pattern.
type Anomaly struct {
	Type        string
	Description string
	Severity    Severity
}

// Assessment is the overall verdict for a session.
type Assessment string

const (
	AssessmentConsistent   Assessment = "CONSISTENT WITH HUMAN TYPING"
	AssessmentSuspicious   Assessment = "SUSPICIOUS PATTERNS DETECTED"
	AssessmentInsufficient Assessment = "INSUFFICIENT DATA"
)

// Report is the complete assessment output for one session.
type Report struct {
	Session    session.Info
	Metrics    analytics.Result
	Anomalies  []Anomaly
	Assessment Assessment
}

// Build derives a report from a session snapshot and its computed metrics.
func Build(info session.Info, metrics analytics.Result) *Report {
	r := &Report{Session: info, Metrics: metrics}

	if metrics["total-keystrokes"] < MinKeystrokesForAssessment {
		r.Assessment = AssessmentInsufficient
		return r
	}

	r.Anomalies = detectAnomalies(metrics)

	alerts := 0
	for _, a := range r.Anomalies {
		if a.Severity == SeverityAlert {
			alerts++
		}
	}
	if alerts >= AlertCount {
		r.Assessment = AssessmentSuspicious
	} else {
		r.Assessment = AssessmentConsistent
	}
	return r
}

// detectAnomalies applies the threshold checks to the metric values.
func detectAnomalies(m analytics.Result) []Anomaly {
	var anomalies []Anomaly

	if ratio := m["paste-char-ratio"]; ratio >= ThresholdPasteRatio {
		anomalies = append(anomalies, Anomaly{
			Type:        "high_paste_ratio",
			Description: fmt.Sprintf("%.0f%% of inserted text arrived via paste", ratio*100),
			Severity:    SeverityAlert,
		})
	}

	if cps := m["max-burst-cps"]; cps > ThresholdBurstCPS {
		anomalies = append(anomalies, Anomaly{
			Type:        "high_velocity",
			Description: fmt.Sprintf("sustained burst of %.1f keystrokes/sec exceeds human typing", cps),
			Severity:    SeverityAlert,
		})
	}

	if b := m["burstiness"]; b > 0 && b < ThresholdLowBurstiness {
		anomalies = append(anomalies, Anomaly{
			Type:        "uniform_timing",
			Description: fmt.Sprintf("keystroke timing variation %.3f is unnaturally uniform", b),
			Severity:    SeverityAlert,
		})
	}

	if e := m["event-type-entropy"]; e < ThresholdLowEntropy {
		anomalies = append(anomalies, Anomaly{
			Type:        "low_entropy",
			Description: fmt.Sprintf("event mix entropy %.3f suggests a single-mode stream", e),
			Severity:    SeverityWarning,
		})
	}

	if m["pause-count"] == 0 && m["total-keystrokes"] >= 100 {
		anomalies = append(anomalies, Anomaly{
			Type:        "no_pauses",
			Description: "no thinking pauses across the whole session",
			Severity:    SeverityWarning,
		})
	}

	if gap := m["longest-pause-ms"]; gap > ThresholdGapMs {
		anomalies = append(anomalies, Anomaly{
			Type:        "gap",
			Description: fmt.Sprintf("silent gap of %s", formatMs(gap)),
			Severity:    SeverityInfo,
		})
	}

	return anomalies
}

// Print writes a formatted report to w. Metric rows appear in the order the
// ids list dictates; pass registry order for reproducible output.
func Print(w io.Writer, r *Report, metricOrder []string) {
	if r == nil {
		fmt.Fprintln(w, "No report data available")
		return
	}

	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "                    TYPING BEHAVIOR ANALYSIS")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Session:        %s\n", r.Session.ID)
	if r.Session.ProjectID != "" {
		fmt.Fprintf(w, "Project:        %s\n", r.Session.ProjectID)
	}
	if r.Session.ExternalUserID != "" {
		fmt.Fprintf(w, "Subject:        %s\n", r.Session.ExternalUserID)
	}
	fmt.Fprintf(w, "Events:         %d\n", r.Session.EventCount)
	fmt.Fprintf(w, "Started:        %s\n", r.Session.SessionStart.Format(time.RFC3339))
	if r.Session.Submitted {
		fmt.Fprintf(w, "Submitted:      %s\n", r.Session.SubmissionTime.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Repeat("-", 72))
	fmt.Fprintln(w, "METRICS")
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, id := range orderedIDs(r.Metrics, metricOrder) {
		fmt.Fprintf(w, "%-28s %12.3f\n", id, r.Metrics[id])
	}
	fmt.Fprintln(w)

	if len(r.Anomalies) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", 72))
		fmt.Fprintln(w, "ANOMALIES DETECTED")
		fmt.Fprintln(w, strings.Repeat("-", 72))
		for i, a := range r.Anomalies {
			fmt.Fprintf(w, "%d. [%s] %s: %s\n", i+1, strings.ToUpper(string(a.Severity)), a.Type, a.Description)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintf(w, "ASSESSMENT: %s\n", r.Assessment)
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

// orderedIDs returns result keys in the supplied order, with any keys not
// covered by the order appended alphabetically.
func orderedIDs(m analytics.Result, order []string) []string {
	seen := make(map[string]bool, len(order))
	ids := make([]string, 0, len(m))
	for _, id := range order {
		if _, ok := m[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	var rest []string
	for id := range m {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

func formatMs(ms float64) string {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Second).String()
}
