// Package db holds helpers shared by the SQL repositories.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
)

// RunColumns are the JSON and nullable columns of the security_runs table.
type RunColumns struct {
	FinishedAt    sql.NullTime
	StagesJSON    string
	WarningsJSON  string
	ArtifactsJSON string
}

// EncodeRun flattens the nested parts of r into column values.
func EncodeRun(r *runs.Run) (RunColumns, error) {
	var c RunColumns
	if !r.FinishedAt.IsZero() {
		c.FinishedAt = sql.NullTime{Time: r.FinishedAt, Valid: true}
	}
	var err error
	if c.StagesJSON, err = jsonColumn(r.Stages, "[]"); err != nil {
		return c, fmt.Errorf("encode stages: %w", err)
	}
	if c.WarningsJSON, err = jsonColumn(r.Warnings, "[]"); err != nil {
		return c, fmt.Errorf("encode warnings: %w", err)
	}
	if c.ArtifactsJSON, err = jsonColumn(r.Artifacts, "[]"); err != nil {
		return c, fmt.Errorf("encode artifacts: %w", err)
	}
	return c, nil
}

// DecodeRun fills r from column values read back from the table.
func DecodeRun(r *runs.Run, c RunColumns) error {
	if c.FinishedAt.Valid {
		r.FinishedAt = c.FinishedAt.Time
	}
	if err := fromJSONColumn(c.StagesJSON, &r.Stages); err != nil {
		return fmt.Errorf("decode stages of %s: %w", r.ID, err)
	}
	if err := fromJSONColumn(c.WarningsJSON, &r.Warnings); err != nil {
		return fmt.Errorf("decode warnings of %s: %w", r.ID, err)
	}
	if err := fromJSONColumn(c.ArtifactsJSON, &r.Artifacts); err != nil {
		return fmt.Errorf("decode artifacts of %s: %w", r.ID, err)
	}
	return nil
}

func jsonColumn(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func fromJSONColumn(s string, v any) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// DetailsJSON ensures details is valid JSON; invalid input is wrapped as {"raw": ...}.
func DetailsJSON(details string) string {
	if strings.TrimSpace(details) == "" {
		return "{}"
	}
	var js any
	if json.Unmarshal([]byte(details), &js) != nil {
		b, _ := json.Marshal(map[string]string{"raw": details})
		return string(b)
	}
	return details
}

// StringOrDash returns "-" when the input is empty/whitespace
func StringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// DashToEmpty reverses StringOrDash when reading rows back.
func DashToEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
