package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

func TestParseTheHarvester(t *testing.T) {
	data := []byte(`{
  "emails": ["Info@Example.com", "sales@example.com"],
  "hosts": ["www.example.com", "cdn.example.com:93.184.216.34, 93.184.216.35"],
  "ips": ["198.51.100.7"],
  "asns": ["AS15133"]
}`)
	findings, err := parseTheHarvester(reqFor("example.com"), data, testNow)
	require.NoError(t, err)

	byKind := map[domain.FindingKind][]string{}
	for _, f := range findings {
		byKind[f.Kind] = append(byKind[f.Kind], f.Value)
	}
	assert.Equal(t, []string{"info@example.com", "sales@example.com"}, byKind[domain.KindEmail])
	assert.Equal(t, []string{"www.example.com", "cdn.example.com"}, byKind[domain.KindSubdomain])
	assert.Equal(t, []string{"93.184.216.34", "93.184.216.35", "198.51.100.7"}, byKind[domain.KindHost])
}

func TestParseTheHarvesterBadJSON(t *testing.T) {
	_, err := parseTheHarvester(reqFor("example.com"), []byte("*** theHarvester banner ***"), testNow)
	assert.Error(t, err)
}

func TestBuildTheHarvesterReportPath(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir()}
	a := newTheHarvester(r, domain.ToolOptions{}).(*execAdapter)

	cmd, out, err := a.build(a, reqFor("example.com"), r.dir)
	require.NoError(t, err)
	assert.Equal(t, "theHarvester", cmd.Binary)
	assert.Contains(t, out, "harvest.json")
}
