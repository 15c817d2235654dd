// Package controls provides the framework control model and repositories
// that load regulatory control sets for compliance analysis.
package controls

import (
	"fmt"
	"strings"
)

// Supported regulatory frameworks.
const (
	FrameworkGDPR  = "GDPR"
	FrameworkSOC2  = "SOC2"
	FrameworkHIPAA = "HIPAA"
)

// Severity levels for controls and findings.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// ValidFramework reports whether s names a supported framework.
func ValidFramework(s string) bool {
	switch s {
	case FrameworkGDPR, FrameworkSOC2, FrameworkHIPAA:
		return true
	}
	return false
}

// Frameworks returns the supported framework identifiers.
func Frameworks() []string {
	return []string{FrameworkGDPR, FrameworkSOC2, FrameworkHIPAA}
}

// SeverityRank orders severities for sorting: higher is more severe.
// Unknown severities rank lowest so they sort after known ones.
func SeverityRank(severity string) int {
	switch strings.ToLower(severity) {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// NormalizeSeverity lowercases a severity, maps common aliases onto the
// canonical levels, and returns "" for anything unrecognized.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityHigh, "critical", "severe":
		return SeverityHigh
	case SeverityMedium, "moderate", "med":
		return SeverityMedium
	case SeverityLow, "minor", "info", "informational":
		return SeverityLow
	}
	return ""
}

// Control is one discrete requirement within a framework.
type Control struct {
	ControlID   string   `yaml:"control_id" json:"control_id"`
	FrameworkID string   `yaml:"framework_id" json:"framework_id"`
	Category    string   `yaml:"category" json:"category"`
	Requirement string   `yaml:"requirement" json:"requirement"`
	Severity    string   `yaml:"severity" json:"severity"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Validate checks the control has the required fields.
func (c *Control) Validate() error {
	if c.ControlID == "" {
		return fmt.Errorf("control_id is required")
	}
	if !ValidFramework(c.FrameworkID) {
		return fmt.Errorf("control %s: unknown framework %q", c.ControlID, c.FrameworkID)
	}
	if c.Requirement == "" {
		return fmt.Errorf("control %s: requirement is required", c.ControlID)
	}
	if NormalizeSeverity(c.Severity) == "" {
		return fmt.Errorf("control %s: invalid severity %q", c.ControlID, c.Severity)
	}
	return nil
}
