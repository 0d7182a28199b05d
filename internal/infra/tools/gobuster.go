package tools

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

var gobusterLineRE = regexp.MustCompile(`^(/\S*)\s+\(Status:\s*(\d{3})\)(?:\s+\[Size:\s*(\d+)\])?`)

// gobuster: wordlist path brute force, full profile only.
func newGobuster(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolGobuster,
			stage:       domain.StageWebProbe,
			minProfile:  domain.ProfileFull,
			targetKinds: []domain.TargetKind{domain.TargetDomain, domain.TargetIP, domain.TargetCIDR},
			produces:    []domain.FindingKind{domain.KindHTTPPath},
			maxRuntime:  20 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildGobuster,
		parse:  parseGobuster,
	}
}

func buildGobuster(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
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
	out := filepath.Join(dir, "gobuster.txt")
	cmd := domain.Command{
		Binary: a.binary("gobuster"),
		Args:   []string{"dir", "-u", target, "-w", a.opts.WordlistWeb, "-q", "-z", "--no-color", "-t", "10", "-o", out},
		Dir:    dir,
	}
	return cmd, out, nil
}

func parseGobuster(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	base := ""
	if len(req.Targets) == 1 {
		base = strings.TrimSuffix(req.Targets[0], "/")
	}
	var findings []domain.Finding
	for _, line := range bytes.Split(data, []byte("\n")) {
		m := gobusterLineRE.FindSubmatch(bytes.TrimSpace(line))
		if m == nil {
			continue
		}
		meta := map[string]string{"status": string(m[2])}
		if len(m[3]) > 0 {
			meta["size"] = string(m[3])
		}
		f, err := domain.NewFinding(domain.KindHTTPPath, base+string(m[1]), string(domain.ToolGobuster), at, meta)
		if err != nil {
			continue
		}
		findings = append(findings, f)
	}
	return findings, nil
}
