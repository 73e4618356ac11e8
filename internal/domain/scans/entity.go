package scans

import (
	"strings"
	"time"
)

// Kind enum: jenis scan yang didukung pipeline
type Kind string

const (
	KindSAST      Kind = "sast"
	KindSCA       Kind = "sca"
	KindContainer Kind = "container"
	KindDAST      Kind = "dast"
)

// ParseKind maps a config value to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSAST, KindSCA, KindContainer, KindDAST:
		return k, true
	}
	return "", false
}

// Outcome enum
type Outcome string

const (
	OutcomePassed         Outcome = "PASSED"
	OutcomeFailedFindings Outcome = "FAILED_FINDINGS"
	OutcomeToolError      Outcome = "TOOL_ERROR"
)

// Severity is ordered: a higher value is more severe.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityInfo
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// ParseSeverity accepts the spellings used by the supported tools
// (trivy upper case, npm "moderate", ZAP "informational").
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, true
	case "high", "error":
		return SeverityHigh, true
	case "medium", "moderate", "warning":
		return SeverityMedium, true
	case "low", "note":
		return SeverityLow, true
	case "info", "informational":
		return SeverityInfo, true
	}
	return SeverityUnknown, false
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Add counts one finding. Unknown severities only raise Total.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	case SeverityInfo:
		c.Info++
	}
	c.Total++
}

// AtOrAbove returns how many findings are at least as severe as threshold.
func (c SeverityCounts) AtOrAbove(threshold Severity) int {
	n := 0
	if threshold <= SeverityCritical {
		n += c.Critical
	}
	if threshold <= SeverityHigh {
		n += c.High
	}
	if threshold <= SeverityMedium {
		n += c.Medium
	}
	if threshold <= SeverityLow {
		n += c.Low
	}
	if threshold <= SeverityInfo {
		n += c.Info
	}
	return n
}

// Result hasil satu stage scan
type Result struct {
	Outcome   Outcome        `json:"outcome"`
	Kind      ErrorKind      `json:"kind,omitempty"`
	Counts    SeverityCounts `json:"counts"`
	RawOutput string         `json:"raw_output,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Message   string         `json:"message,omitempty"`
}

// Passed reports whether the stage produced a clean result.
func (r Result) Passed() bool { return r.Outcome == OutcomePassed }
