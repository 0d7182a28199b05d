package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

const sampleNmapXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE nmaprun>
<nmaprun scanner="nmap" args="nmap -sV -oX nmap.xml" start="1719000000" version="7.94">
<host starttime="1719000000" endtime="1719000050">
<status state="up" reason="user-set"/>
<address addr="93.184.216.34" addrtype="ipv4"/>
<hostnames>
<hostname name="example.com" type="user"/>
</hostnames>
<ports>
<port protocol="tcp" portid="80">
<state state="open" reason="syn-ack" reason_ttl="54"/>
<service name="http" product="ECS" method="probed" conf="10"/>
</port>
<port protocol="tcp" portid="443">
<state state="open" reason="syn-ack" reason_ttl="54"/>
<service name="https" product="ECS" version="1.2" method="probed" conf="10"/>
</port>
<port protocol="tcp" portid="22">
<state state="filtered" reason="no-response" reason_ttl="0"/>
</port>
</ports>
</host>
<host starttime="1719000000" endtime="1719000050">
<status state="down" reason="no-response"/>
<address addr="198.51.100.9" addrtype="ipv4"/>
</host>
<runstats><finished time="1719000100" timestr="" exit="success"/><hosts up="1" down="1" total="2"/></runstats>
</nmaprun>`

func TestParseNmap(t *testing.T) {
	findings, err := parseNmap(reqFor("example.com"), []byte(sampleNmapXML), testNow)
	require.NoError(t, err)

	byKind := map[domain.FindingKind][]string{}
	for _, f := range findings {
		byKind[f.Kind] = append(byKind[f.Kind], f.Value)
	}
	assert.Equal(t, []string{"93.184.216.34", "example.com"}, byKind[domain.KindHost])
	assert.Equal(t, []string{"93.184.216.34:80/tcp", "93.184.216.34:443/tcp"}, byKind[domain.KindOpenPort])
	assert.Equal(t, []string{"93.184.216.34:80/http", "93.184.216.34:443/https"}, byKind[domain.KindService])

	for _, f := range findings {
		if f.Value == "93.184.216.34:443/https" {
			assert.Equal(t, map[string]string{"product": "ECS", "version": "1.2"}, f.Meta)
		}
	}
}

func TestParseNmapBadXML(t *testing.T) {
	_, err := parseNmap(reqFor("example.com"), []byte("Starting Nmap 7.94\n"), testNow)
	assert.Error(t, err)
}

func TestBuildNmapTargetsFile(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir()}
	a := newNmap(r, domain.ToolOptions{}).(*execAdapter)

	req := domain.ToolRequest{
		ScanID:  "s",
		Profile: domain.ProfileActive,
		Targets: []string{"example.com", "10.0.0.0/24", "198.51.100.9"},
	}
	cmd, out, err := a.build(a, req, r.dir)
	require.NoError(t, err)
	assert.Contains(t, cmd.Args, "-iL")
	assert.Contains(t, out, "nmap.xml")

	data, err := os.ReadFile(filepath.Join(r.dir, "targets.txt"))
	require.NoError(t, err)
	assert.Equal(t, "example.com\n10.0.0.0/24\n198.51.100.9\n", string(data))

	req.Targets = []string{"example.com", "`reboot`"}
	_, _, err = a.build(a, req, r.dir)
	assert.Error(t, err)
}
