package controls

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gdprControls = `
framework_id: GDPR
controls:
  - control_id: GDPR-5.1
    category: Data Retention
    severity: high
    requirement: Personal data must be kept no longer than necessary for the stated purpose.
    keywords: [retention, storage limitation]
  - control_id: GDPR-32.1
    category: Security
    severity: medium
    requirement: Implement appropriate technical and organizational security measures.
`

const soc2Controls = `
framework_id: SOC2
controls:
  - control_id: CC6.1
    category: Logical Access
    severity: high
    requirement: Restrict logical access to authorized users.
`

func writeControlsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gdpr"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gdpr", "gdpr.yaml"), []byte(gdprControls), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "soc2.yaml"), []byte(soc2Controls), 0644))
	return dir
}

func TestFileRepository_ListControls(t *testing.T) {
	dir := writeControlsDir(t)

	repo, err := NewFileRepository(dir, "**/*.yaml", nil)
	require.NoError(t, err)

	gdpr, err := repo.ListControls(context.Background(), FrameworkGDPR)
	require.NoError(t, err)
	require.Len(t, gdpr, 2)
	assert.Equal(t, "GDPR-5.1", gdpr[0].ControlID)
	assert.Equal(t, FrameworkGDPR, gdpr[0].FrameworkID)

	soc2, err := repo.ListControls(context.Background(), FrameworkSOC2)
	require.NoError(t, err)
	assert.Len(t, soc2, 1)

	hipaa, err := repo.ListControls(context.Background(), FrameworkHIPAA)
	require.NoError(t, err)
	assert.Empty(t, hipaa)
}

func TestFileRepository_UnknownFramework(t *testing.T) {
	dir := writeControlsDir(t)

	repo, err := NewFileRepository(dir, "**/*.yaml", nil)
	require.NoError(t, err)

	_, err = repo.ListControls(context.Background(), "PCI")
	require.Error(t, err)
}

func TestFileRepository_SkipsMalformedFiles(t *testing.T) {
	dir := writeControlsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("::: not yaml"), 0644))

	repo, err := NewFileRepository(dir, "**/*.yaml", nil)
	require.NoError(t, err)

	gdpr, err := repo.ListControls(context.Background(), FrameworkGDPR)
	require.NoError(t, err)
	assert.Len(t, gdpr, 2, "good files still load when one file is broken")
}

func TestFileRepository_Reload(t *testing.T) {
	dir := writeControlsDir(t)

	repo, err := NewFileRepository(dir, "**/*.yaml", nil)
	require.NoError(t, err)

	const hipaaControls = `
framework_id: HIPAA
controls:
  - control_id: HIPAA-164.312
    category: Technical Safeguards
    severity: high
    requirement: Implement access control for electronic protected health information.
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hipaa.yaml"), []byte(hipaaControls), 0644))
	require.NoError(t, repo.Reload())

	hipaa, err := repo.ListControls(context.Background(), FrameworkHIPAA)
	require.NoError(t, err)
	assert.Len(t, hipaa, 1)
}

func TestControlValidate(t *testing.T) {
	valid := Control{
		ControlID:   "GDPR-5.1",
		FrameworkID: FrameworkGDPR,
		Requirement: "Keep data no longer than needed.",
		Severity:    SeverityHigh,
	}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.Requirement = ""
	assert.Error(t, missing.Validate())

	badSeverity := valid
	badSeverity.Severity = "catastrophic"
	assert.Error(t, badSeverity.Validate())

	badFramework := valid
	badFramework.FrameworkID = "ISO27001"
	assert.Error(t, badFramework.Validate())
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.Greater(t, SeverityRank(SeverityLow), SeverityRank("unknown"))
	assert.Equal(t, SeverityRank("HIGH"), SeverityRank("high"))
}

func TestSummary(t *testing.T) {
	ctrls := []Control{
		{ControlID: "C-LOW", FrameworkID: FrameworkGDPR, Category: "Misc", Severity: SeverityLow, Requirement: "Low requirement."},
		{ControlID: "C-HIGH", FrameworkID: FrameworkGDPR, Category: "Core", Severity: SeverityHigh, Requirement: "High requirement."},
	}

	summary := Summary(ctrls, 12, 200)
	require.NotEmpty(t, summary)

	// High severity is rendered first
	assert.Less(t, strings.Index(summary, "C-HIGH"), strings.Index(summary, "C-LOW"))
}

func TestSummary_TruncatesAndCaps(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "requirement text "
	}

	var ctrls []Control
	for i := 0; i < 20; i++ {
		ctrls = append(ctrls, Control{
			ControlID:   string(rune('A' + i)),
			FrameworkID: FrameworkGDPR,
			Severity:    SeverityMedium,
			Requirement: long,
		})
	}

	summary := Summary(ctrls, 5, 100)
	assert.Equal(t, 5, strings.Count(summary, "\n"))
}

func TestSummary_TruncationKeepsValidUTF8(t *testing.T) {
	ctrls := []Control{{
		ControlID:   "GDPR-1",
		FrameworkID: FrameworkGDPR,
		Severity:    SeverityHigh,
		Requirement: "ab" + strings.Repeat("\u20ac", 50),
	}}

	summary := Summary(ctrls, 1, 100)
	assert.True(t, utf8.ValidString(summary))
}
