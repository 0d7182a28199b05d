package tools

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// dirsearch: second path brute forcer, different engine and wordlist
// handling than gobuster so the two corroborate each other.
func newDirsearch(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolDirsearch,
			stage:       domain.StageWebProbe,
			minProfile:  domain.ProfileFull,
			targetKinds: []domain.TargetKind{domain.TargetDomain, domain.TargetIP, domain.TargetCIDR},
			produces:    []domain.FindingKind{domain.KindHTTPPath},
			maxRuntime:  20 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildDirsearch,
		parse:  parseDirsearch,
	}
}

func buildDirsearch(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	target, err := singleTarget(req)
	if err != nil {
		return domain.Command{}, "", err
	}
	if err := checkURL(target); err != nil {
		return domain.Command{}, "", err
	}
	if a.opts.WordlistWeb == "" {
		return domain.Command{}, "", fmt.Errorf("web wordlist not configured")
	}
	out := filepath.Join(dir, "dirsearch.txt")
	cmd := domain.Command{
		Binary: a.binary("dirsearch"),
		Args:   []string{"-u", target, "-w", a.opts.WordlistWeb, "-q", "--no-color", "--format=plain", "-o", out},
		Dir:    dir,
	}
	return cmd, out, nil
}

// Plain report lines: "<status>  <size>  <url>" with an optional
// redirect arrow suffix. Anything else is banner noise.
func parseDirsearch(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	var findings []domain.Finding
	for _, line := range bytes.Split(data, []byte("\n")) {
		fields := strings.Fields(string(line))
		if len(fields) < 3 {
			continue
		}
		status := fields[0]
		if len(status) != 3 || status[0] < '1' || status[0] > '5' {
			continue
		}
		rawURL := ""
		for _, f := range fields[2:] {
			if strings.Contains(f, "://") {
				rawURL = f
				break
			}
		}
		if rawURL == "" {
			continue
		}
		meta := map[string]string{"status": status, "size": fields[1]}
		f, err := domain.NewFinding(domain.KindHTTPPath, rawURL, string(domain.ToolDirsearch), at, meta)
		if err != nil {
			continue
		}
		findings = append(findings, f)
	}
	return findings, nil
}
