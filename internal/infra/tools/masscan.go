package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// masscan: full-range sweep, only under the full profile. Targets must
// already be address literals; hostnames are resolved upstream.
func newMasscan(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolMasscan,
			stage:       domain.StagePortScan,
			minProfile:  domain.ProfileFull,
			targetKinds: []domain.TargetKind{domain.TargetDomain, domain.TargetIP, domain.TargetCIDR},
			produces:    []domain.FindingKind{domain.KindOpenPort},
			maxRuntime:  30 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildMasscan,
		parse:  parseMasscan,
	}
}

func buildMasscan(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	if len(req.Targets) == 0 {
		return domain.Command{}, "", fmt.Errorf("no targets")
	}
	for _, t := range req.Targets {
		parsed, err := domain.ParseTarget(t)
		if err != nil {
			return domain.Command{}, "", err
		}
		if parsed.Kind == domain.TargetDomain {
			return domain.Command{}, "", fmt.Errorf("target %q is not an address literal", t)
		}
	}
	out := filepath.Join(dir, "masscan.json")
	args := []string{"-p1-65535", "--rate", "1000", "--wait", "3", "-oJ", out}
	args = append(args, req.Targets...)
	return domain.Command{Binary: a.binary("masscan"), Args: args, Dir: dir}, out, nil
}

// parseMasscan reads -oJ output line by line. The file is close to a
// JSON array but historically carries a trailing comma before the
// closing bracket, so whole-document decoding is off the table.
func parseMasscan(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	var findings []domain.Finding
	bad := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSuffix(bytes.TrimSpace(line), []byte(","))
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var row struct {
			IP    string `json:"ip"`
			Ports []struct {
				Port   int    `json:"port"`
				Proto  string `json:"proto"`
				Status string `json:"status"`
			} `json:"ports"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			bad++
			continue
		}
		if row.IP == "" {
			continue
		}
		for _, p := range row.Ports {
			if p.Status != "" && p.Status != "open" {
				continue
			}
			f, err := domain.NewFinding(domain.KindOpenPort, domain.PortValue(row.IP, p.Port, p.Proto), string(domain.ToolMasscan), at, nil)
			if err != nil {
				continue
			}
			findings = append(findings, f)
		}
	}
	if bad > 0 && len(findings) == 0 {
		return nil, fmt.Errorf("no parsable records (%d rejected)", bad)
	}
	return findings, nil
}
