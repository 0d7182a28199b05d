package tools

import (
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// Settings map config onto the adapter set. Per-tool options override
// the shared wordlists and the shared timeout.
type Settings struct {
	WordlistWeb    string
	WordlistDNS    string
	DefaultTimeout time.Duration // per-tool wall clock, 0 = adapter built-in
	Tools          map[domain.Tool]domain.ToolOptions
}

func (s Settings) options(t domain.Tool) domain.ToolOptions {
	o := s.Tools[t]
	if o.WordlistWeb == "" {
		o.WordlistWeb = s.WordlistWeb
	}
	if o.WordlistDNS == "" {
		o.WordlistDNS = s.WordlistDNS
	}
	if o.Timeout == 0 {
		o.Timeout = s.DefaultTimeout
	}
	return o
}

// Registry returns every adapter in execution order: discovery, then
// portscan, then webprobe. The order is stable; report entries and the
// stage planner rely on it.
func Registry(runner domain.Runner, s Settings) []domain.Adapter {
	adapters := []domain.Adapter{
		newSubfinder(runner, s.options(domain.ToolSubfinder)),
		newAmass(runner, s.options(domain.ToolAmass)),
		newTheHarvester(runner, s.options(domain.ToolTheHarvester)),
		newWhois(s.options(domain.ToolWhois)),
		newDNSEnum(runner, s.options(domain.ToolDNSEnum)),
		newNmap(runner, s.options(domain.ToolNmap)),
		newMasscan(runner, s.options(domain.ToolMasscan)),
		newWhatWeb(runner, s.options(domain.ToolWhatWeb)),
	}
	// path brute forcers are pointless without a wordlist
	if s.options(domain.ToolGobuster).WordlistWeb != "" {
		adapters = append(adapters, newGobuster(runner, s.options(domain.ToolGobuster)))
	}
	if s.options(domain.ToolDirsearch).WordlistWeb != "" {
		adapters = append(adapters, newDirsearch(runner, s.options(domain.ToolDirsearch)))
	}
	return adapters
}

// Binaries lists the external commands the registered adapters will
// shell out to, with config path overrides applied. Whois is absent:
// that lookup runs in-process. Readiness probes walk this list.
func Binaries(s Settings) []string {
	type entry struct {
		tool domain.Tool
		def  string
	}
	roster := []entry{
		{domain.ToolSubfinder, "subfinder"},
		{domain.ToolAmass, "amass"},
		{domain.ToolTheHarvester, "theHarvester"},
		{domain.ToolDNSEnum, "dnsenum"},
		{domain.ToolNmap, "nmap"},
		{domain.ToolMasscan, "masscan"},
		{domain.ToolWhatWeb, "whatweb"},
	}
	if s.options(domain.ToolGobuster).WordlistWeb != "" {
		roster = append(roster, entry{domain.ToolGobuster, "gobuster"})
	}
	if s.options(domain.ToolDirsearch).WordlistWeb != "" {
		roster = append(roster, entry{domain.ToolDirsearch, "dirsearch"})
	}
	bins := make([]string, 0, len(roster))
	for _, e := range roster {
		bin := e.def
		if o := s.options(e.tool); o.BinaryPath != "" {
			bin = o.BinaryPath
		}
		bins = append(bins, bin)
	}
	return bins
}
