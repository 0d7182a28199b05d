package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// nmap: version-detecting port scan over the whole stage target list in
// one invocation (-iL), findings lifted from the -oX report.
func newNmap(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolNmap,
			stage:       domain.StagePortScan,
			minProfile:  domain.ProfileActive,
			targetKinds: []domain.TargetKind{domain.TargetDomain, domain.TargetIP, domain.TargetCIDR},
			produces:    []domain.FindingKind{domain.KindHost, domain.KindOpenPort, domain.KindService},
			maxRuntime:  30 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildNmap,
		parse:  parseNmap,
	}
}

func buildNmap(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	if len(req.Targets) == 0 {
		return domain.Command{}, "", fmt.Errorf("no targets")
	}
	for _, t := range req.Targets {
		if err := checkHostish(t); err != nil {
			return domain.Command{}, "", err
		}
	}
	list := filepath.Join(dir, "targets.txt")
	if err := os.WriteFile(list, []byte(strings.Join(req.Targets, "\n")+"\n"), 0o600); err != nil {
		return domain.Command{}, "", err
	}
	out := filepath.Join(dir, "nmap.xml")
	args := []string{"-iL", list, "-oX", out, "-Pn", "-T4", "-sV", "--open", "--top-ports", "1000"}
	if req.Profile == domain.ProfileFull {
		args = append(args, "--version-all")
	}
	return domain.Command{Binary: a.binary("nmap"), Args: args, Dir: dir}, out, nil
}

func parseNmap(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	var run nmap.Run
	if err := nmap.Parse(data, &run); err != nil {
		return nil, fmt.Errorf("xml: %w", err)
	}
	var findings []domain.Finding
	add := func(kind domain.FindingKind, raw string, meta map[string]string) {
		if f, ferr := domain.NewFinding(kind, raw, string(domain.ToolNmap), at, meta); ferr == nil {
			findings = append(findings, f)
		}
	}
	for _, host := range run.Hosts {
		if len(host.Addresses) == 0 {
			continue
		}
		if host.Status.State != "" && host.Status.State != "up" {
			continue
		}
		addr := host.Addresses[0].Addr
		add(domain.KindHost, addr, nil)
		for _, hn := range host.Hostnames {
			add(domain.KindHost, hn.Name, nil)
		}
		for _, port := range host.Ports {
			// "open" and "open|filtered" both count
			if !strings.Contains(port.State.State, "open") {
				continue
			}
			add(domain.KindOpenPort, domain.PortValue(addr, int(port.ID), port.Protocol), nil)
			if port.Service.Name == "" {
				continue
			}
			var meta map[string]string
			if port.Service.Product != "" || port.Service.Version != "" {
				meta = map[string]string{}
				if port.Service.Product != "" {
					meta["product"] = port.Service.Product
				}
				if port.Service.Version != "" {
					meta["version"] = port.Service.Version
				}
			}
			add(domain.KindService, domain.ServiceValue(addr, int(port.ID), port.Service.Name), meta)
		}
	}
	return findings, nil
}
