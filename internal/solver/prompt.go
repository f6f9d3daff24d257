package solver

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Rendering caps keep prompts bounded even when evidence gathering returned
// more material.
const (
	renderedSimilarCases = 3
	renderedErrorCodes   = 3
	sampleMessageLimit   = 100
)

const systemPrompt = `You are an expert VOC (Voice of Customer) issue analyst.
Your role is to analyze customer complaints against gathered evidence,
identify the root cause, and propose an actionable resolution.

## Problem Type Classification

- integration_error: issues with external APIs, gateways, or third-party
  services. Action: integration_inquiry (contact the external team).
- code_error: internal bugs, nil dereferences, logic errors.
  Action: code_fix (identify the code location, suggest a fix).
- business_improvement: feature requests, UX issues, process improvements.
  Action: business_proposal (describe impact, suggest an improvement).

## Confidence Assessment

Score each dimension from 0.0 to 1.0:
- error_pattern_clarity: are error codes and stack traces clear?
- log_voc_correlation: do the logs strongly correlate with the complaint?
- similar_case_match: are there similar resolved cases?
- system_info_availability: is system metadata available?

Overall confidence >= 0.7: set state to WAITING_CONFIRM.
Overall confidence < 0.7: set state to MANUAL_REQUIRED.

Be honest: if evidence is weak, reflect that in the confidence scores.`

// buildAnalysisPrompt renders the complaint and evidence bundle into the
// user prompt, ending with the strict JSON output contract.
func buildAnalysisPrompt(ticketRef string, receivedAt time.Time, rawVOC string, ev *Evidence) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following VOC issue using the gathered evidence.\n\n")
	fmt.Fprintf(&b, "**Ticket ID**: %s\n", ticketRef)
	fmt.Fprintf(&b, "**Received At**: %s\n", receivedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Inferred Service**: %s\n\n", ev.InferredService)
	fmt.Fprintf(&b, "**VOC Content**:\n%s\n\n---\n", rawVOC)

	if len(ev.SimilarCases) > 0 {
		b.WriteString("\n**Similar Historical Cases:**\n")
		for i, c := range ev.SimilarCases {
			if i >= renderedSimilarCases {
				break
			}
			fmt.Fprintf(&b, "%d. Ticket %s (similarity: %.2f)\n", i+1, c.TicketRef, c.Similarity)
			fmt.Fprintf(&b, "   - Type: %s", c.PrimaryType)
			if c.SecondaryType != "" {
				fmt.Fprintf(&b, " > %s", c.SecondaryType)
			}
			fmt.Fprintf(&b, "\n   - Resolution: %s\n", c.Resolution)
		}
	} else {
		b.WriteString("\n**Similar Historical Cases:** None found\n")
	}

	if ev.Analysis != nil {
		ea := ev.Analysis
		b.WriteString("\n**Error Analysis:**\n")
		fmt.Fprintf(&b, "- Total Errors: %d, Warnings: %d\n", ea.TotalErrors, ea.TotalWarnings)
		if len(ea.ErrorSummaries) > 0 {
			b.WriteString("- Top Error Codes:\n")
			for i, es := range ea.ErrorSummaries {
				if i >= renderedErrorCodes {
					break
				}
				fmt.Fprintf(&b, "  * %s: %d occurrences\n", es.ErrorCode, es.Count)
				fmt.Fprintf(&b, "    Sample: %s\n", truncate(es.SampleMessage, sampleMessageLimit))
			}
		}
		if len(ea.ExternalSystemErrors) > 0 {
			b.WriteString("- External System Issues:\n")
			for _, ext := range ea.ExternalSystemErrors {
				fmt.Fprintf(&b, "  * %s: %d errors\n", ext.System, ext.ErrorCount)
			}
		}
	} else {
		fmt.Fprintf(&b, "\n**Error Analysis:** No errors found in logs (checked %d entries)\n", ev.LogTotalCount)
	}

	if ev.SystemInfo != nil {
		si := ev.SystemInfo
		fmt.Fprintf(&b, "\n**System Information (%s):**\n", si.Name)
		fmt.Fprintf(&b, "- Type: %s\n", si.Type)
		if si.ContactInfo != "" {
			fmt.Fprintf(&b, "- Contact: %s\n", si.ContactInfo)
		}
		if len(si.RecentIncidents) > 0 {
			b.WriteString("- Recent Incidents:\n")
			for _, incident := range si.RecentIncidents {
				fmt.Fprintf(&b, "  * %s\n", incident)
			}
		}
	}

	b.WriteString(`
---

Based on the evidence above, provide ONLY a valid JSON object (no markdown, no explanation) with this exact structure:

EXAMPLE FORMAT:
{
  "problem_type_primary": "integration_error",
  "problem_type_secondary": "timeout",
  "affected_system": "PaymentService",
  "root_cause_analysis": "The payment gateway timed out after 5 seconds...",
  "evidence_summary": "Found 3 ERROR logs showing EXTERNAL_TIMEOUT...",
  "confidence": {
    "error_pattern_clarity": 0.8,
    "log_voc_correlation": 0.7,
    "similar_case_match": 0.6,
    "system_info_availability": 0.9,
    "overall": 0.75
  },
  "state": "WAITING_CONFIRM",
  "action_proposal": {
    "action_type": "integration_inquiry",
    "title": "Contact Payment Gateway Team",
    "description": "Reach out to the payment gateway support to investigate...",
    "target_system": "PaymentGateway",
    "contact_info": "support@paymentgateway.example.com"
  },
  "similar_cases_used": ["VOC-20250101-0001"],
  "log_summary": "3 errors between 14:28-14:32"
}

IMPORTANT RULES:
1. problem_type_primary: MUST be exactly one of: "integration_error", "code_error", "business_improvement"
2. action_type: MUST match the problem type (integration_error->integration_inquiry, code_error->code_fix, business_improvement->business_proposal)
3. All text fields (root_cause_analysis, evidence_summary, description) must be STRINGS, not lists
4. confidence scores: all numbers between 0.0 and 1.0
5. overall confidence >= 0.7 -> state = "WAITING_CONFIRM", otherwise "MANUAL_REQUIRED"
6. Return ONLY the JSON object, no markdown code blocks, no extra text

YOUR RESPONSE (JSON only):
`)

	return b.String()
}

// truncate cuts s to at most n characters, never splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
