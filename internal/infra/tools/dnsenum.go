package tools

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// A-record lines look like "www.example.com.  86400  IN  A  93.184.216.34".
var dnsenumARecordRE = regexp.MustCompile(`(?m)^(\S+?)\.?\s+\d+\s+IN\s+A\s+(\d{1,3}(?:\.\d{1,3}){3})\s*$`)

// dnsenum: active DNS enumeration (NS/MX walk, zone transfer attempt,
// optional wordlist brute force). Findings come off stdout.
func newDNSEnum(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolDNSEnum,
			stage:       domain.StageDiscovery,
			minProfile:  domain.ProfileActive,
			targetKinds: []domain.TargetKind{domain.TargetDomain},
			produces:    []domain.FindingKind{domain.KindSubdomain, domain.KindHost},
			maxRuntime:  15 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildDNSEnum,
		parse:  parseDNSEnum,
		exitOK: dnsenumExitOK,
	}
}

func buildDNSEnum(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	target, err := singleTarget(req)
	if err != nil {
		return domain.Command{}, "", err
	}
	if err := checkDomain(target); err != nil {
		return domain.Command{}, "", err
	}
	args := []string{"--nocolor", "--noreverse", "--threads", "8", "--timeout", "5"}
	if a.opts.WordlistDNS != "" {
		args = append(args, "-f", a.opts.WordlistDNS)
	}
	args = append(args, target)
	return domain.Command{Binary: a.binary("dnsenum"), Args: args, Dir: dir}, "", nil
}

func parseDNSEnum(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	apex := ""
	if len(req.Targets) == 1 {
		apex = strings.ToLower(req.Targets[0])
	}
	var findings []domain.Finding
	for _, m := range dnsenumARecordRE.FindAllSubmatch(data, -1) {
		name, addr := string(m[1]), string(m[2])
		kind := domain.KindHost
		if apex != "" {
			lower := strings.ToLower(strings.TrimSuffix(name, "."))
			if lower == apex || strings.HasSuffix(lower, "."+apex) {
				kind = domain.KindSubdomain
			}
		}
		if f, err := domain.NewFinding(kind, name, string(domain.ToolDNSEnum), at, nil); err == nil {
			findings = append(findings, f)
		}
		if f, err := domain.NewFinding(domain.KindHost, addr, string(domain.ToolDNSEnum), at, nil); err == nil {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// dnsenum exits nonzero whenever any sub-step fails, zone transfer
// refusals included. Treat the run as good unless stderr carries
// something beyond the usual resolver noise.
func dnsenumExitOK(res domain.ProcessResult) bool {
	if res.ExitCode == 0 {
		return true
	}
	for _, line := range bytes.Split(res.Stderr, []byte("\n")) {
		l := bytes.ToLower(bytes.TrimSpace(line))
		if len(l) == 0 {
			continue
		}
		benign := bytes.Contains(l, []byte("query failed")) ||
			bytes.Contains(l, []byte("noerror")) ||
			bytes.Contains(l, []byte("nxdomain")) ||
			bytes.Contains(l, []byte("lame server")) ||
			bytes.Contains(l, []byte("timed out")) ||
			bytes.Contains(l, []byte("transfer not allowed")) ||
			bytes.Contains(l, []byte("refused"))
		if !benign {
			return false
		}
	}
	return true
}
