package solver

import (
	"sort"
	"strings"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/logstore"
)

// maxStackPatterns caps how many distinct stack-trace signatures are kept.
const maxStackPatterns = 10

// ErrorSummary aggregates ERROR entries sharing an error code.
type ErrorSummary struct {
	ErrorCode       string
	Count           int
	FirstOccurrence time.Time
	LastOccurrence  time.Time
	SampleMessage   string
}

// ExternalSystemError counts errors attributed to one external system.
type ExternalSystemError struct {
	System     string
	ErrorCount int
}

// PatternAnalysis is the derived error-pattern summary for a log window.
type PatternAnalysis struct {
	ErrorSummaries       []ErrorSummary
	StackTracePatterns   []string
	ExternalSystemErrors []ExternalSystemError
	TotalErrors          int
	TotalWarnings        int
}

// AnalyzeErrorPatterns groups ERROR entries by error code, extracts leading
// stack-trace lines, and tallies errors attributable to external systems.
// Empty input yields a zero-valued analysis; it never fails.
func AnalyzeErrorPatterns(entries []logstore.Entry) PatternAnalysis {
	var analysis PatternAnalysis

	byCode := make(map[string][]logstore.Entry)
	externalCounts := make(map[string]int)
	seenStacks := make(map[string]bool)

	for _, e := range entries {
		switch e.Level {
		case "ERROR":
			analysis.TotalErrors++
		case "WARN":
			analysis.TotalWarnings++
		}

		if e.Level == "ERROR" && e.ErrorCode != "" {
			byCode[e.ErrorCode] = append(byCode[e.ErrorCode], e)
		}

		if e.StackTrace != "" {
			head := strings.TrimSpace(strings.SplitN(e.StackTrace, "\n", 2)[0])
			if head != "" && !seenStacks[head] && len(analysis.StackTracePatterns) < maxStackPatterns {
				seenStacks[head] = true
				analysis.StackTracePatterns = append(analysis.StackTracePatterns, head)
			}
		}

		lower := strings.ToLower(e.Message)
		if strings.Contains(lower, "external") || strings.Contains(lower, "gateway") {
			if gw := e.Metadata["gateway"]; gw != "" {
				externalCounts[gw]++
			}
		}
	}

	for code, occurrences := range byCode {
		summary := ErrorSummary{
			ErrorCode:       code,
			Count:           len(occurrences),
			FirstOccurrence: occurrences[0].Timestamp,
			LastOccurrence:  occurrences[0].Timestamp,
			SampleMessage:   occurrences[0].Message,
		}
		for _, occ := range occurrences[1:] {
			if occ.Timestamp.Before(summary.FirstOccurrence) {
				summary.FirstOccurrence = occ.Timestamp
			}
			if occ.Timestamp.After(summary.LastOccurrence) {
				summary.LastOccurrence = occ.Timestamp
			}
		}
		analysis.ErrorSummaries = append(analysis.ErrorSummaries, summary)
	}
	sort.Slice(analysis.ErrorSummaries, func(i, j int) bool {
		a, b := analysis.ErrorSummaries[i], analysis.ErrorSummaries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ErrorCode < b.ErrorCode
	})

	for system, count := range externalCounts {
		analysis.ExternalSystemErrors = append(analysis.ExternalSystemErrors, ExternalSystemError{
			System:     system,
			ErrorCount: count,
		})
	}
	sort.Slice(analysis.ExternalSystemErrors, func(i, j int) bool {
		a, b := analysis.ExternalSystemErrors[i], analysis.ExternalSystemErrors[j]
		if a.ErrorCount != b.ErrorCount {
			return a.ErrorCount > b.ErrorCount
		}
		return a.System < b.System
	})

	return analysis
}
