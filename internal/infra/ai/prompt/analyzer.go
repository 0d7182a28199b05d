package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Assessment is the schema shared by the model prompt and the local
// analyzer, so callers can consume either.
type Assessment struct {
	RiskLevel       string   `json:"risk_level"`
	ExposedServices []string `json:"exposed_services"`
	NotablePaths    []string `json:"notable_paths"`
	Recommendations []string `json:"recommendations"`
}

// reportDoc is the subset of the rendered report the analyzer reads.
type reportDoc struct {
	Target   string `json:"target"`
	Findings []struct {
		Kind  string            `json:"kind"`
		Value string            `json:"value"`
		Meta  map[string]string `json:"meta"`
	} `json:"findings"`
}

// service names that widen the attack surface, with the reason
var riskyServices = map[string]string{
	"telnet":        "cleartext remote shell",
	"ftp":           "cleartext file transfer",
	"rdp":           "remote desktop exposed",
	"ms-wbt-server": "remote desktop exposed",
	"vnc":           "remote desktop exposed",
	"smb":           "file sharing exposed",
	"microsoft-ds":  "file sharing exposed",
	"mysql":         "database reachable from outside",
	"postgresql":    "database reachable from outside",
	"mssql":         "database reachable from outside",
	"redis":         "unauthenticated data store by default",
	"mongodb":       "unauthenticated data store by default",
	"memcached":     "unauthenticated data store by default",
}

var notablePathHints = []string{
	"/admin", "/phpmyadmin", "/wp-admin", "/.git", "/.env", "/.svn",
	"/backup", "/config", "/debug", "/console", "/actuator",
}

// AssessReport grades a rendered scan report without calling any model.
func AssessReport(reportJSON string) (string, error) {
	var doc reportDoc
	if err := json.Unmarshal([]byte(reportJSON), &doc); err != nil {
		return "", fmt.Errorf("unparsable report: %w", err)
	}

	a := Assessment{
		ExposedServices: []string{},
		NotablePaths:    []string{},
		Recommendations: []string{},
	}
	score := 0
	openPorts := 0
	leakedFiles := false
	for _, f := range doc.Findings {
		switch f.Kind {
		case "open-port":
			openPorts++
		case "service":
			name := f.Value[strings.LastIndex(f.Value, "/")+1:]
			if reason, ok := riskyServices[name]; ok {
				a.ExposedServices = append(a.ExposedServices, fmt.Sprintf("%s (%s)", f.Value, reason))
				score += 3
			}
		case "http-path":
			low := strings.ToLower(f.Value)
			for _, hint := range notablePathHints {
				if strings.Contains(low, hint) {
					a.NotablePaths = append(a.NotablePaths, f.Value)
					score += 2
					if hint == "/.git" || hint == "/.env" {
						leakedFiles = true
						score += 2
					}
					break
				}
			}
		}
	}
	if openPorts > 10 {
		score += 2
	}
	sort.Strings(a.ExposedServices)
	sort.Strings(a.NotablePaths)

	switch {
	case score >= 8:
		a.RiskLevel = "critical"
	case score >= 5:
		a.RiskLevel = "high"
	case score >= 2:
		a.RiskLevel = "medium"
	default:
		a.RiskLevel = "low"
	}

	if len(a.ExposedServices) > 0 {
		a.Recommendations = append(a.Recommendations, "Restrict the listed services to trusted networks or move them behind a VPN.")
	}
	if leakedFiles {
		a.Recommendations = append(a.Recommendations, "Remove version control and environment files from the web root and rotate any secrets they contained.")
	}
	if openPorts > 10 {
		a.Recommendations = append(a.Recommendations, fmt.Sprintf("Reduce the exposed surface: %d open ports found, close everything the service does not need.", openPorts))
	}
	if len(a.Recommendations) == 0 {
		a.Recommendations = append(a.Recommendations, "Keep monitoring: rescan periodically and diff the results for new exposure.")
	}

	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
