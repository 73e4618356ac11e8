package prompt

import (
	"fmt"
	"strings"
)

// maxSummaryBytes keeps the user prompt bounded for very long runs.
const maxSummaryBytes = 12 << 10

// SystemPrompt directs the model to a short plain-text triage note.
func SystemPrompt() string {
	return `You are a senior application security engineer reviewing a failed security pipeline run.
The run summary lists each stage (SAST, SCA, container scan, DAST) with its outcome:
PASSED, FAILED_FINDINGS (the scanner found issues at or above the gate threshold) or
TOOL_ERROR (the scanner could not run, crashed or timed out).

Write a triage note of at most 10 short lines, plain text, no markdown headings:
- First line: the single most likely reason the run failed.
- Then one line per failing stage: what to check or fix first.
- Treat TOOL_ERROR as an infrastructure problem, not as a vulnerability.
- Do not invent CVE identifiers or file names that are not in the summary.`
}

// UserPrompt wraps the run summary.
func UserPrompt(summary string) string {
	s := strings.TrimSpace(summary)
	if len(s) > maxSummaryBytes {
		s = s[:maxSummaryBytes] + "\n[truncated]"
	}
	return fmt.Sprintf("Run summary:\n%s", s)
}
