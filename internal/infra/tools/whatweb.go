package tools

import (
	"bytes"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

var (
	whatwebStatusRE = regexp.MustCompile(`^\[(\d{3})[^\]]*\]`)
	whatwebPluginRE = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_-]*)\[([^\]]*)\]`)
)

// whatweb: web technology fingerprinting. One probe per seeded URL, the
// brief log keeps one line per response.
func newWhatWeb(runner domain.Runner, opts domain.ToolOptions) domain.Adapter {
	return &execAdapter{
		spec: spec{
			name:        domain.ToolWhatWeb,
			stage:       domain.StageWebProbe,
			minProfile:  domain.ProfileActive,
			targetKinds: []domain.TargetKind{domain.TargetDomain, domain.TargetIP, domain.TargetCIDR},
			produces:    []domain.FindingKind{domain.KindService},
			maxRuntime:  5 * time.Minute,
		},
		runner: runner,
		opts:   opts,
		build:  buildWhatWeb,
		parse:  parseWhatWeb,
	}
}

func buildWhatWeb(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
	target, err := singleTarget(req)
	if err != nil {
		return domain.Command{}, "", err
	}
	if err := checkURL(target); err != nil {
		return domain.Command{}, "", err
	}
	out := filepath.Join(dir, "whatweb.txt")
	aggression := "1"
	if req.Profile == domain.ProfileFull {
		aggression = "3"
	}
	cmd := domain.Command{
		Binary: a.binary("whatweb"),
		Args:   []string{"--color=never", "--no-errors", "-a", aggression, "--log-brief", out, target},
		Dir:    dir,
	}
	return cmd, out, nil
}

func parseWhatWeb(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
	var findings []domain.Finding
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		rawURL, rest, ok := bytes.Cut(line, []byte(" "))
		if !ok {
			continue
		}
		u, err := url.Parse(string(rawURL))
		if err != nil || u.Hostname() == "" {
			continue
		}
		meta := map[string]string{}
		if m := whatwebStatusRE.FindSubmatch(rest); m != nil {
			meta["status"] = string(m[1])
			rest = rest[len(m[0]):]
		}
		for _, m := range whatwebPluginRE.FindAllSubmatch(rest, -1) {
			value := string(bytes.TrimSpace(m[2]))
			if value == "" {
				continue
			}
			switch string(m[1]) {
			case "HTTPServer":
				meta["server"] = value
			case "Title":
				meta["title"] = value
			case "X-Powered-By":
				meta["powered_by"] = value
			case "IP":
				meta["ip"] = value
			}
		}
		if len(meta) == 0 {
			meta = nil
		}
		value := domain.ServiceValue(u.Hostname(), urlPort(u), u.Scheme)
		if f, err := domain.NewFinding(domain.KindService, value, string(domain.ToolWhatWeb), at, meta); err == nil {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func urlPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}
