package prompt

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assess(t *testing.T, reportJSON string) Assessment {
	t.Helper()
	out, err := AssessReport(reportJSON)
	require.NoError(t, err)
	var a Assessment
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	return a
}

func TestAssessReportFlagsRiskyServices(t *testing.T) {
	report := `{
		"target": "example.com",
		"findings": [
			{"kind": "open-port", "value": "93.184.216.34:3389/tcp"},
			{"kind": "service", "value": "93.184.216.34:3389/rdp"},
			{"kind": "service", "value": "93.184.216.34:6379/redis"},
			{"kind": "service", "value": "93.184.216.34:443/https"},
			{"kind": "http-path", "value": "https://example.com/.git/config"}
		]
	}`
	a := assess(t, report)

	assert.Equal(t, "critical", a.RiskLevel)
	require.Len(t, a.ExposedServices, 2)
	assert.Contains(t, a.ExposedServices[0], "rdp")
	assert.Contains(t, a.ExposedServices[1], "redis")
	assert.Equal(t, []string{"https://example.com/.git/config"}, a.NotablePaths)
	assert.NotEmpty(t, a.Recommendations)
	assert.Contains(t, a.Recommendations[1], "version control")
}

func TestAssessReportQuietTargetIsLowRisk(t *testing.T) {
	report := `{
		"target": "example.com",
		"findings": [
			{"kind": "subdomain", "value": "www.example.com"},
			{"kind": "open-port", "value": "93.184.216.34:443/tcp"},
			{"kind": "service", "value": "93.184.216.34:443/https"}
		]
	}`
	a := assess(t, report)

	assert.Equal(t, "low", a.RiskLevel)
	assert.Empty(t, a.ExposedServices)
	assert.Empty(t, a.NotablePaths)
	require.Len(t, a.Recommendations, 1)
	assert.Contains(t, a.Recommendations[0], "rescan")
}

func TestAssessReportCountsManyOpenPorts(t *testing.T) {
	doc := map[string]any{"target": "example.com"}
	var findings []map[string]string
	for port := 8000; port < 8012; port++ {
		findings = append(findings, map[string]string{
			"kind":  "open-port",
			"value": fmt.Sprintf("10.0.0.5:%d/tcp", port),
		})
	}
	doc["findings"] = findings
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	a := assess(t, string(raw))
	assert.Equal(t, "medium", a.RiskLevel)
	require.Len(t, a.Recommendations, 1)
	assert.Contains(t, a.Recommendations[0], "12 open ports")
}

func TestAssessReportRejectsGarbage(t *testing.T) {
	_, err := AssessReport("not json at all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparsable report")
}

func TestPromptsCarrySchema(t *testing.T) {
	sys := SystemPrompt()
	assert.Contains(t, sys, "risk_level")
	assert.Contains(t, sys, "exposed_services")
	assert.Contains(t, sys, "notable_paths")
	assert.Contains(t, sys, "recommendations")

	user := UserPrompt(`{"target":"example.com"}`)
	assert.Contains(t, user, `{"target":"example.com"}`)
}
