package scans

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseSARIF counts results of a SARIF 2.1 log (semgrep --sarif).
func ParseSARIF(data []byte) (SeverityCounts, error) {
	var doc struct {
		Runs []struct {
			Results []struct {
				Level      string         `json:"level"`
				Properties map[string]any `json:"properties"`
			} `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return SeverityCounts{}, fmt.Errorf("parse sarif: %w", err)
	}
	var c SeverityCounts
	for _, run := range doc.Runs {
		for _, r := range run.Results {
			sev := SeverityUnknown
			if r.Properties != nil {
				for _, key := range []string{"severity", "Severity"} {
					if s, ok := r.Properties[key].(string); ok {
						sev, _ = ParseSeverity(s)
						break
					}
				}
			}
			if sev == SeverityUnknown {
				// level error/warning/note -> high/medium/low
				sev, _ = ParseSeverity(r.Level)
			}
			c.Add(sev)
		}
	}
	return c, nil
}

// ParseTrivyJSON counts vulnerabilities in `trivy image --format json` output.
func ParseTrivyJSON(data []byte) (SeverityCounts, error) {
	var raw struct {
		Results []struct {
			Target          string `json:"Target"`
			Vulnerabilities []struct {
				VulnerabilityID string `json:"VulnerabilityID"`
				Severity        string `json:"Severity"`
			} `json:"Vulnerabilities"`
		} `json:"Results"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return SeverityCounts{}, fmt.Errorf("parse trivy output: %w", err)
	}
	var c SeverityCounts
	for _, res := range raw.Results {
		for _, v := range res.Vulnerabilities {
			sev, _ := ParseSeverity(v.Severity)
			c.Add(sev)
		}
	}
	return c, nil
}

// NPMAuditError is the error object npm prints instead of a report
// (e.g. ENOLOCK, registry failures).
type NPMAuditError struct {
	Code    string `json:"code"`
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

func (e *NPMAuditError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("npm audit %s: %s", e.Code, e.Summary)
	}
	return "npm audit: " + e.Summary
}

// ParseNPMAudit reads `npm audit --json`. It returns *NPMAuditError when npm
// reported a harness failure rather than a report.
func ParseNPMAudit(data []byte) (SeverityCounts, error) {
	var doc struct {
		Error    *NPMAuditError `json:"error"`
		Metadata *struct {
			Vulnerabilities map[string]int `json:"vulnerabilities"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return SeverityCounts{}, fmt.Errorf("parse npm audit output: %w", err)
	}
	if doc.Error != nil {
		return SeverityCounts{}, doc.Error
	}
	if doc.Metadata == nil {
		return SeverityCounts{}, fmt.Errorf("npm audit output has no metadata")
	}
	var c SeverityCounts
	for name, n := range doc.Metadata.Vulnerabilities {
		if name == "total" {
			continue
		}
		sev, ok := ParseSeverity(name)
		if !ok {
			continue
		}
		for i := 0; i < n; i++ {
			c.Add(sev)
		}
	}
	return c, nil
}

// zapRisk maps ZAP riskcode values.
var zapRisk = map[string]Severity{
	"3": SeverityHigh,
	"2": SeverityMedium,
	"1": SeverityLow,
	"0": SeverityInfo,
}

// ParseZAPJSON counts alerts (not instances) in a zap-baseline -J report.
func ParseZAPJSON(data []byte) (SeverityCounts, error) {
	var doc struct {
		Site []struct {
			Alerts []struct {
				RiskCode string `json:"riskcode"`
			} `json:"alerts"`
		} `json:"site"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return SeverityCounts{}, fmt.Errorf("parse zap json: %w", err)
	}
	var c SeverityCounts
	for _, site := range doc.Site {
		for _, a := range site.Alerts {
			c.Add(zapRisk[a.RiskCode])
		}
	}
	return c, nil
}

var (
	rxZAPRisk  = regexp.MustCompile(`risk\s*(?:level)?\s*:?\s*(high|medium|low|informational|info)\b`)
	rxZAPClass = regexp.MustCompile(`class\s*=\s*"(?:risk|severity)-(high|medium|low|informational|info)"`)
)

// ParseZAPHTML is a heuristic over the classic HTML report; used only when the
// JSON report is missing. It may slightly over/undercount depending on the template.
func ParseZAPHTML(data []byte) SeverityCounts {
	s := strings.ToLower(string(data))
	var c SeverityCounts
	for _, m := range rxZAPRisk.FindAllStringSubmatch(s, -1) {
		sev, _ := ParseSeverity(m[1])
		c.Add(sev)
	}
	if c.Total > 0 {
		return c
	}
	// newer templates use classes like risk-high
	for _, m := range rxZAPClass.FindAllStringSubmatch(s, -1) {
		sev, _ := ParseSeverity(m[1])
		c.Add(sev)
	}
	return c
}
