package tools

import (
	"bytes"
	"net"
	"path/filepath"
	"regexp"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// amass: OWASP subdomain enumeration. Passive profile keeps it off the
// wire with -passive, active and above let it resolve.
func newAmass(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolAmass,
			stage:       domain.StageDiscovery,
			minProfile:  domain.ProfilePassive,
			targetKinds: []domain.TargetKind{domain.TargetDomain},
			produces:    []domain.FindingKind{domain.KindSubdomain},
			maxRuntime:  15 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildAmass,
		parse:  parseAmass,
	}
}

func buildAmass(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	target, err := singleTarget(req)
	if err != nil {
		return domain.Command{}, "", err
	}
	if err := checkDomain(target); err != nil {
		return domain.Command{}, "", err
	}
	out := filepath.Join(dir, "amass.txt")
	args := []string{"enum", "-d", target, "-nocolor", "-timeout", "10", "-o", out}
	if req.Profile == domain.ProfilePassive {
		args = append(args, "-passive")
	}
	return domain.Command{Binary: a.binary("amass"), Args: args, Dir: dir}, out, nil
}

// parseAmass handles both output generations: v3 prints bare hostnames,
// v4 prints relation triples where the first token is the source node.
func parseAmass(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	var findings []domain.Finding
	for _, line := range bytes.Split(ansiRE.ReplaceAll(data, nil), []byte("\n")) {
		fields := bytes.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if bytes.Contains(line, []byte("-->")) && (len(fields) < 2 || string(fields[1]) != "(FQDN)") {
			continue
		}
		name := string(fields[0])
		if net.ParseIP(name) != nil {
			continue
		}
		f, err := domain.NewFinding(domain.KindSubdomain, name, string(domain.ToolAmass), at, nil)
		if err != nil {
			continue
		}
		findings = append(findings, f)
	}
	return findings, nil
}
