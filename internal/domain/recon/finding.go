package recon

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FindingKind enum
type FindingKind string

const (
	KindHost      FindingKind = "host"
	KindSubdomain FindingKind = "subdomain"
	KindOpenPort  FindingKind = "open-port"
	KindService   FindingKind = "service"
	KindHTTPPath  FindingKind = "http-path"
	KindEmail     FindingKind = "email"
	KindOrgRecord FindingKind = "org-record"
)

// kindRank fixes the ordering of kinds in reports and views.
var kindRank = map[FindingKind]int{
	KindHost:      1,
	KindSubdomain: 2,
	KindOpenPort:  3,
	KindService:   4,
	KindHTTPPath:  5,
	KindEmail:     6,
	KindOrgRecord: 7,
}

// ParseFindingKind validates a kind name coming from query params.
func ParseFindingKind(raw string) (FindingKind, error) {
	k := FindingKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := kindRank[k]; !ok {
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown finding kind %q", raw)}
	}
	return k, nil
}

// Finding is one normalized discovered fact. Immutable once created;
// the aggregator produces merged copies instead of mutating.
type Finding struct {
	Kind      FindingKind       `json:"kind"`
	Value     string            `json:"value"`
	Tools     []string          `json:"tools"`
	FirstSeen time.Time         `json:"first_seen"`
	Meta      map[string]string `json:"meta,omitempty"`
}

var emailRE = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// NewFinding normalizes the raw value for its kind. A nil meta is fine.
func NewFinding(kind FindingKind, raw, tool string, at time.Time, meta map[string]string) (Finding, error) {
	value, err := NormalizeValue(kind, raw)
	if err != nil {
		return Finding{}, err
	}
	return Finding{
		Kind:      kind,
		Value:     value,
		Tools:     []string{tool},
		FirstSeen: at.UTC(),
		Meta:      meta,
	}, nil
}

// Key is the dedup key: no two findings with the same key coexist in a graph.
func (f Finding) Key() string {
	return string(f.Kind) + "|" + f.Value
}

func (f Finding) clone() Finding {
	c := f
	c.Tools = append([]string(nil), f.Tools...)
	if f.Meta != nil {
		c.Meta = make(map[string]string, len(f.Meta))
		for k, v := range f.Meta {
			c.Meta[k] = v
		}
	}
	return c
}

// PortValue builds the canonical open-port value: addr:port/proto.
func PortValue(addr string, port int, proto string) string {
	if proto == "" {
		proto = "tcp"
	}
	return net.JoinHostPort(normalizeAddr(addr), strconv.Itoa(port)) + "/" + strings.ToLower(proto)
}

// ServiceValue builds the canonical service value: addr:port/name.
func ServiceValue(addr string, port int, name string) string {
	return net.JoinHostPort(normalizeAddr(addr), strconv.Itoa(port)) + "/" + strings.ToLower(name)
}

func normalizeAddr(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	s = strings.TrimSuffix(s, ".")
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return s
}

// NormalizeValue applies the per-kind normalization rules.
func NormalizeValue(kind FindingKind, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyValue
	}

	switch kind {
	case KindHost:
		if ip := net.ParseIP(strings.TrimSuffix(strings.ToLower(s), ".")); ip != nil {
			return ip.String(), nil
		}
		return NormalizeHostname(s)

	case KindSubdomain:
		return NormalizeHostname(s)

	case KindOpenPort, KindService:
		return normalizePortLike(s)

	case KindHTTPPath:
		return normalizeHTTPPath(s)

	case KindEmail:
		e := strings.ToLower(s)
		if !emailRE.MatchString(e) {
			return "", fmt.Errorf("invalid email: %q", raw)
		}
		return e, nil

	case KindOrgRecord:
		return strings.Join(strings.Fields(s), " "), nil

	default:
		return "", fmt.Errorf("unknown finding kind: %q", kind)
	}
}

// normalizePortLike parses addr:port/suffix and rebuilds it canonically.
func normalizePortLike(s string) (string, error) {
	s = strings.ToLower(s)
	slash := strings.LastIndex(s, "/")
	if slash < 0 || slash == len(s)-1 {
		return "", fmt.Errorf("invalid port value: %q", s)
	}
	hostport, suffix := s[:slash], s[slash+1:]
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", fmt.Errorf("invalid port value: %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port number: %q", portStr)
	}
	return net.JoinHostPort(normalizeAddr(host), strconv.Itoa(port)) + "/" + suffix, nil
}

// normalizeHTTPPath lowercases scheme and host, strips query string and
// fragment, and drops default ports.
func normalizeHTTPPath(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid url: %q", s)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme: %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("invalid url: %q", s)
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path, nil
}

// sortFindings orders by kind rank then value for deterministic output.
func sortFindings(fs []Finding) {
	sort.Slice(fs, func(i, j int) bool {
		if kindRank[fs[i].Kind] != kindRank[fs[j].Kind] {
			return kindRank[fs[i].Kind] < kindRank[fs[j].Kind]
		}
		return fs[i].Value < fs[j].Value
	})
}
