package solver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/logstore"
	"github.com/geonhos/poc-voc-auto-processing/internal/rag"
	"github.com/geonhos/poc-voc-auto-processing/internal/registry"
)

// Evidence-gathering parameters. The window brackets the received time; the
// similar-case search always runs with the same shape so retrieval quality is
// comparable across tickets.
const (
	logWindow          = time.Hour
	similarCasesTopK   = 5
	similarCasesMinSim = 0.5
)

// LogSource answers log queries during evidence gathering.
type LogSource interface {
	Query(ctx context.Context, p logstore.QueryParams) (logstore.QueryResult, error)
}

// SimilarSearcher finds historical cases resembling a complaint.
type SimilarSearcher interface {
	SearchSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]rag.SimilarCase, error)
}

// SystemLookup resolves system metadata by name.
type SystemLookup interface {
	Lookup(name string) registry.SystemInfo
}

// Evidence is the bundle assembled for one solve attempt. Analysis is nil
// when no logs were found, which is distinct from an analysis that found
// zero errors.
type Evidence struct {
	InferredService string
	Logs            []logstore.Entry
	LogTotalCount   int
	Analysis        *PatternAnalysis
	SimilarCases    []rag.SimilarCase
	SystemInfo      *registry.SystemInfo
}

// serviceKeywords maps complaint keywords to service names, checked in order.
// Korean intake keywords sit alongside their English counterparts.
var serviceKeywords = []struct {
	keywords []string
	service  string
}{
	{[]string{"결제", "payment"}, "PaymentService"},
	{[]string{"환불", "refund"}, "RefundService"},
	{[]string{"주문", "order"}, "OrderService"},
	{[]string{"이메일", "email"}, "EmailService"},
}

// inferService guesses the responsible service from complaint keywords.
func inferService(rawVOC string) string {
	lower := strings.ToLower(rawVOC)
	for _, sk := range serviceKeywords {
		for _, kw := range sk.keywords {
			if strings.Contains(lower, kw) {
				return sk.service
			}
		}
	}
	return "MainService"
}

// gatherEvidence runs the fixed evidence sequence: infer the service, pull
// ERROR logs around the received time, derive patterns when logs exist,
// search similar cases, and look up the worst-offending external system.
// Any step error fails the whole attempt; no partial bundle goes downstream.
func (s *Solver) gatherEvidence(ctx context.Context, rawVOC string, receivedAt time.Time) (*Evidence, error) {
	ev := &Evidence{InferredService: inferService(rawVOC)}

	logResult, err := s.logs.Query(ctx, logstore.QueryParams{
		Service: ev.InferredService,
		Start:   receivedAt.Add(-logWindow),
		End:     receivedAt.Add(logWindow),
		Level:   "ERROR",
		Limit:   logstore.MaxQueryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("log query failed: %w", err)
	}
	ev.Logs = logResult.Entries
	ev.LogTotalCount = logResult.TotalCount

	if len(ev.Logs) > 0 {
		analysis := AnalyzeErrorPatterns(ev.Logs)
		ev.Analysis = &analysis
	}

	ev.SimilarCases, err = s.similar.SearchSimilar(ctx, rawVOC, similarCasesTopK, similarCasesMinSim)
	if err != nil {
		return nil, fmt.Errorf("similar case search failed: %w", err)
	}

	if ev.Analysis != nil && len(ev.Analysis.ExternalSystemErrors) > 0 {
		info := s.systems.Lookup(ev.Analysis.ExternalSystemErrors[0].System)
		ev.SystemInfo = &info
	}

	return ev, nil
}
