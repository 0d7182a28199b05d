package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	whoisclient "github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// whoisAdapter talks the whois TCP protocol in-process, no binary
// involved. Registry responses that defeat the structured parser fall
// back to a regex sweep over the raw text.
type whoisAdapter struct {
	opts   domain.ToolOptions
	lookup func(target string) (string, error)
}

func newWhois(opts domain.ToolOptions) domain.Adapter {
	client := whoisclient.NewClient()
	client.SetTimeout(30 * time.Second)
	return &whoisAdapter{
		opts:   opts,
		lookup: func(target string) (string, error) { return client.Whois(target) },
	}
}

func (w *whoisAdapter) Name() domain.Tool   { return domain.ToolWhois }
func (w *whoisAdapter) Stage() domain.Stage { return domain.StageDiscovery }

func (w *whoisAdapter) TargetKinds() []domain.TargetKind {
	return []domain.TargetKind{domain.TargetDomain, domain.TargetIP}
}

func (w *whoisAdapter) Produces() []domain.FindingKind {
	return []domain.FindingKind{domain.KindOrgRecord, domain.KindEmail, domain.KindHost}
}

func (w *whoisAdapter) Profiles() []domain.Profile {
	return []domain.Profile{domain.ProfilePassive, domain.ProfileActive, domain.ProfileFull}
}

func (w *whoisAdapter) MaxRuntime() time.Duration {
	if w.opts.Timeout > 0 {
		return w.opts.Timeout
	}
	return time.Minute
}

func (w *whoisAdapter) Run(ctx context.Context, req domain.ToolRequest) domain.Outcome {
	target, err := singleTarget(req)
	if err != nil {
		return domain.Outcome{Status: domain.OutcomeFailure, Message: err.Error(), Err: err}
	}
	if err := checkHostish(target); err != nil {
		return domain.Outcome{Status: domain.OutcomeFailure, Message: err.Error(), Err: err}
	}

	type lookupRes struct {
		raw string
		err error
	}
	ch := make(chan lookupRes, 1)
	go func() {
		raw, lerr := w.lookup(target)
		ch <- lookupRes{raw, lerr}
	}()

	timer := time.NewTimer(w.MaxRuntime())
	defer timer.Stop()

	var raw string
	select {
	case <-ctx.Done():
		return domain.Outcome{Status: domain.OutcomeTimeout, Message: "canceled: " + ctx.Err().Error()}
	case <-timer.C:
		return domain.Outcome{Status: domain.OutcomeTimeout, Message: fmt.Sprintf("wall clock exceeded after %s", w.MaxRuntime())}
	case res := <-ch:
		if res.err != nil {
			return domain.Outcome{Status: domain.OutcomeFailure, Message: res.err.Error(), Err: res.err}
		}
		raw = strings.ReplaceAll(res.raw, "\r\n", "\n")
	}

	artifacts := []domain.Artifact{{Name: "whois.txt", Data: []byte(raw), ContentType: "text/plain"}}
	now := time.Now().UTC()

	findings := parseWhoisStructured(raw, now)
	if findings == nil {
		findings = parseWhoisRegex(raw, now)
	}
	if len(findings) == 0 {
		reason := "no recognizable fields in response"
		if strings.TrimSpace(raw) == "" {
			reason = "empty response"
		}
		warn := &domain.ParseWarning{Tool: domain.ToolWhois, Reason: reason}
		return domain.Outcome{Status: domain.OutcomeParseWarning, Message: warn.Reason, Raw: artifacts, Err: warn}
	}
	return domain.Outcome{
		Status:   domain.OutcomeSuccess,
		Findings: findings,
		Message:  fmt.Sprintf("%d findings", len(findings)),
		Raw:      artifacts,
	}
}

// parseWhoisStructured extracts findings via whois-parser. Returns nil
// when the response cannot be parsed so the regex sweep can take over.
func parseWhoisStructured(raw string, at time.Time) []domain.Finding {
	info, err := whoisparser.Parse(raw)
	if err != nil {
		return nil
	}
	var findings []domain.Finding
	record := func(field, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		f, ferr := domain.NewFinding(domain.KindOrgRecord, field+": "+value, string(domain.ToolWhois), at, nil)
		if ferr == nil {
			findings = append(findings, f)
		}
	}
	email := func(value string) {
		if f, ferr := domain.NewFinding(domain.KindEmail, value, string(domain.ToolWhois), at, nil); ferr == nil {
			findings = append(findings, f)
		}
	}
	if info.Registrar != nil {
		record("registrar", info.Registrar.Name)
		email(info.Registrar.Email)
	}
	if info.Registrant != nil {
		if info.Registrant.Organization != "" {
			record("registrant-org", info.Registrant.Organization)
		} else {
			record("registrant", info.Registrant.Name)
		}
		record("registrant-country", info.Registrant.Country)
		email(info.Registrant.Email)
	}
	for _, c := range []*whoisparser.Contact{info.Administrative, info.Technical, info.Billing} {
		if c != nil {
			email(c.Email)
		}
	}
	if info.Domain != nil {
		record("created", info.Domain.CreatedDate)
		record("expires", info.Domain.ExpirationDate)
		for _, st := range info.Domain.Status {
			record("status", st)
		}
		for _, ns := range info.Domain.NameServers {
			if f, ferr := domain.NewFinding(domain.KindHost, ns, string(domain.ToolWhois), at, map[string]string{"role": "nameserver"}); ferr == nil {
				findings = append(findings, f)
			}
		}
	}
	if len(findings) == 0 {
		return nil
	}
	return findings
}

var (
	whoisEmailRE = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	whoisNSRE    = regexp.MustCompile(`(?im)^\s*Name ?Server:\s*(.+)$`)

	// field patterns cover both domain registries and RIR (IP) responses
	whoisFieldREs = []struct {
		field string
		re    *regexp.Regexp
	}{
		{"registrar", regexp.MustCompile(`(?im)^\s*Registrar:\s*(.+)$`)},
		{"org", regexp.MustCompile(`(?im)^\s*(?:OrgName|org-name|Registrant Organization|organization|descr):\s*(.+)$`)},
		{"netname", regexp.MustCompile(`(?im)^\s*NetName:\s*(.+)$`)},
		{"netrange", regexp.MustCompile(`(?im)^\s*(?:NetRange|inetnum|inet6num):\s*(.+)$`)},
		{"asn", regexp.MustCompile(`(?im)^\s*(?:OriginAS|origin|aut-num):\s*(.+)$`)},
		{"country", regexp.MustCompile(`(?im)^\s*Country:\s*(.+)$`)},
		{"created", regexp.MustCompile(`(?im)^\s*(?:Creation Date|Created On|created):\s*(.+)$`)},
		{"expires", regexp.MustCompile(`(?im)^\s*(?:Registry Expiry Date|Expiration Date|Expires On):\s*(.+)$`)},
	}
)

// parseWhoisRegex is the drift fallback, one org-record per first match
// of each known field plus email and nameserver pivots.
func parseWhoisRegex(raw string, at time.Time) []domain.Finding {
	var findings []domain.Finding
	for _, fr := range whoisFieldREs {
		m := fr.re.FindStringSubmatch(raw)
		if len(m) < 2 {
			continue
		}
		value := strings.TrimSpace(m[1])
		if value == "" {
			continue
		}
		if f, err := domain.NewFinding(domain.KindOrgRecord, fr.field+": "+value, string(domain.ToolWhois), at, nil); err == nil {
			findings = append(findings, f)
		}
	}
	for _, m := range whoisNSRE.FindAllStringSubmatch(raw, -1) {
		if f, err := domain.NewFinding(domain.KindHost, m[1], string(domain.ToolWhois), at, map[string]string{"role": "nameserver"}); err == nil {
			findings = append(findings, f)
		}
	}
	for _, e := range whoisEmailRE.FindAllString(raw, -1) {
		if f, err := domain.NewFinding(domain.KindEmail, e, string(domain.ToolWhois), at, nil); err == nil {
			findings = append(findings, f)
		}
	}
	return findings
}
