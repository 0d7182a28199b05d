package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// subfinder: passive subdomain enumeration over public sources.
func newSubfinder(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolSubfinder,
			stage:       domain.StageDiscovery,
			minProfile:  domain.ProfilePassive,
			targetKinds: []domain.TargetKind{domain.TargetDomain},
			produces:    []domain.FindingKind{domain.KindSubdomain},
			maxRuntime:  10 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildSubfinder,
		parse:  parseSubfinder,
	}
}

func buildSubfinder(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	target, err := singleTarget(req)
	if err != nil {
		return domain.Command{}, "", err
	}
	if err := checkDomain(target); err != nil {
		return domain.Command{}, "", err
	}
	out := filepath.Join(dir, "subfinder.json")
	cmd := domain.Command{
		Binary: a.binary("subfinder"),
		Args:   []string{"-d", target, "-all", "-silent", "-oJ", "-o", out},
		Dir:    dir,
	}
	return cmd, out, nil
}

// parseSubfinder reads -oJ output, one JSON object per line. Older
// releases emit bare hostnames; both shapes are accepted.
func parseSubfinder(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	var findings []domain.Finding
	bad := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var row struct {
			Host   string `json:"host"`
			Source string `json:"source"`
		}
		if err := json.Unmarshal(line, &row); err != nil || row.Host == "" {
			if f, ferr := domain.NewFinding(domain.KindSubdomain, string(line), string(domain.ToolSubfinder), at, nil); ferr == nil {
				findings = append(findings, f)
			} else {
				bad++
			}
			continue
		}
		var meta map[string]string
		if row.Source != "" {
			meta = map[string]string{"source": row.Source}
		}
		f, err := domain.NewFinding(domain.KindSubdomain, row.Host, string(domain.ToolSubfinder), at, meta)
		if err != nil {
			bad++
			continue
		}
		findings = append(findings, f)
	}
	if bad > 0 && len(findings) == 0 {
		return nil, fmt.Errorf("no parsable lines (%d rejected)", bad)
	}
	return findings, nil
}
