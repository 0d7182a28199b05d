package tools

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// theHarvester: OSINT harvesting of emails, hosts and addresses. The -f
// report file is the stable contract; stdout layout changes per release.
func newTheHarvester(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolTheHarvester,
			stage:       domain.StageDiscovery,
			minProfile:  domain.ProfilePassive,
			targetKinds: []domain.TargetKind{domain.TargetDomain},
			produces:    []domain.FindingKind{domain.KindEmail, domain.KindSubdomain, domain.KindHost},
			maxRuntime:  10 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildTheHarvester,
		parse:  parseTheHarvester,
	}
}

func buildTheHarvester(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	target, err := singleTarget(req)
	if err != nil {
		return domain.Command{}, "", err
	}
	if err := checkDomain(target); err != nil {
		return domain.Command{}, "", err
	}
	base := filepath.Join(dir, "harvest")
	cmd := domain.Command{
		Binary: a.binary("theHarvester"),
		Args:   []string{"-d", target, "-b", "all", "-f", base},
		Dir:    dir,
	}
	return cmd, base + ".json", nil
}

func parseTheHarvester(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	var report struct {
		Emails []string `json:"emails"`
		Hosts  []string `json:"hosts"`
		IPs    []string `json:"ips"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("report is not valid json: %w", err)
	}

	var findings []domain.Finding
	add := func(kind domain.FindingKind, raw string) {
		if f, err := domain.NewFinding(kind, raw, string(domain.ToolTheHarvester), at, nil); err == nil {
			findings = append(findings, f)
		}
	}
	for _, e := range report.Emails {
		add(domain.KindEmail, e)
	}
	// report hosts come as "name" or "name:addr1, addr2"
	for _, h := range report.Hosts {
		name, addrs, _ := strings.Cut(h, ":")
		add(domain.KindSubdomain, name)
		for _, a := range strings.Split(addrs, ",") {
			if a = strings.TrimSpace(a); a != "" {
				add(domain.KindHost, a)
			}
		}
	}
	for _, ip := range report.IPs {
		add(domain.KindHost, ip)
	}
	return findings, nil
}
