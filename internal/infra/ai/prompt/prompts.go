package prompt

import "fmt"

// SystemPrompt pins the model to a single JSON object in the assessment
// schema below.
func SystemPrompt() string {
	return `You are a senior penetration tester reviewing reconnaissance results. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- risk_level is one of: low, medium, high, critical.
- exposed_services lists the network services that widen the attack surface, worst first. Keep items concise, e.g. "93.184.216.34:3389/rdp reachable from the internet".
- notable_paths lists discovered HTTP paths worth a closer look (admin panels, backups, version control leftovers).
- recommendations are short, actionable and ordered by impact.
- Use only facts present in the report. Never invent hosts, ports or paths.

Schema (example with empty values):
{
  "risk_level": "<low|medium|high|critical>",
  "exposed_services": ["<string>"],
  "notable_paths": ["<string>"],
  "recommendations": ["<string>"]
}`
}

// UserPrompt wraps the rendered scan report.
func UserPrompt(reportJSON string) string {
	return fmt.Sprintf("Assess the attack surface in this reconnaissance report and respond with the JSON per schema.\n\nReport:\n%s", reportJSON)
}
