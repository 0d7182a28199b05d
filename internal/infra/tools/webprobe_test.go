package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

func TestParseWhatWeb(t *testing.T) {
	data := []byte(`http://example.com [200 OK] Country[UNITED STATES][US], HTTPServer[ECS (sec/96EE)], IP[93.184.216.34], Title[Example Domain]
https://shop.example.com:8443 [301 Moved Permanently] HTTPServer[nginx/1.24.0], RedirectLocation[https://shop.example.com:8443/home]
`)
	findings, err := parseWhatWeb(reqFor("http://example.com"), data, testNow)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(t, domain.KindService, findings[0].Kind)
	assert.Equal(t, "example.com:80/http", findings[0].Value)
	assert.Equal(t, "200", findings[0].Meta["status"])
	assert.Equal(t, "ECS (sec/96EE)", findings[0].Meta["server"])
	assert.Equal(t, "Example Domain", findings[0].Meta["title"])

	assert.Equal(t, "shop.example.com:8443/https", findings[1].Value)
	assert.Equal(t, "nginx/1.24.0", findings[1].Meta["server"])
}

func TestParseGobuster(t *testing.T) {
	data := []byte(`/admin                (Status: 301) [Size: 314] [--> http://example.com/admin/]
/index.html           (Status: 200) [Size: 1256]
/.htaccess            (Status: 403) [Size: 278]
Progress: 4614 / 4615 (99.98%)
`)
	findings, err := parseGobuster(reqFor("http://example.com"), data, testNow)
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, "http://example.com/admin", findings[0].Value)
	assert.Equal(t, map[string]string{"status": "301", "size": "314"}, findings[0].Meta)
	assert.Equal(t, "http://example.com/index.html", findings[1].Value)
	assert.Equal(t, "http://example.com/.htaccess", findings[2].Value)
}

func TestParseDirsearch(t *testing.T) {
	data := []byte(`
# Dirsearch started Mon Jun 2 10:00:00 2025

200   701B   http://example.com/robots.txt
301   314B   http://example.com/admin    ->   http://example.com/admin/
403     1KB  https://example.com/server-status
`)
	findings, err := parseDirsearch(reqFor("http://example.com"), data, testNow)
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, "http://example.com/robots.txt", findings[0].Value)
	assert.Equal(t, "http://example.com/admin", findings[1].Value)
	assert.Equal(t, map[string]string{"status": "301", "size": "314B"}, findings[1].Meta)
	assert.Equal(t, "https://example.com/server-status", findings[2].Value)
}

func TestBuildWebProbeGuards(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir()}

	ww := newWhatWeb(r, domain.ToolOptions{}).(*execAdapter)
	cmd, _, err := ww.build(ww, reqFor("http://example.com"), r.dir)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", cmd.Args[len(cmd.Args)-1])

	_, _, err = ww.build(ww, reqFor("example.com"), r.dir)
	assert.Error(t, err, "scheme is required")

	gb := newGobuster(r, domain.ToolOptions{WordlistWeb: "/opt/wordlists/web.txt"}).(*execAdapter)
	cmd, _, err = gb.build(gb, reqFor("https://example.com"), r.dir)
	require.NoError(t, err)
	assert.Equal(t, "dir", cmd.Args[0])
	assert.Contains(t, cmd.Args, "/opt/wordlists/web.txt")

	gb = newGobuster(r, domain.ToolOptions{}).(*execAdapter)
	_, _, err = gb.build(gb, reqFor("https://example.com"), r.dir)
	assert.Error(t, err, "wordlist is required")

	ds := newDirsearch(r, domain.ToolOptions{WordlistWeb: "/opt/wordlists/web.txt"}).(*execAdapter)
	cmd, _, err = ds.build(ds, reqFor("https://example.com"), r.dir)
	require.NoError(t, err)
	assert.Contains(t, cmd.Args, "--format=plain")
}

func TestWhatWebFullProfileAggression(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir()}
	ww := newWhatWeb(r, domain.ToolOptions{}).(*execAdapter)

	req := domain.ToolRequest{ScanID: "s", Profile: domain.ProfileFull, Targets: []string{"http://example.com"}}
	cmd, _, err := ww.build(ww, req, r.dir)
	require.NoError(t, err)
	assert.Contains(t, cmd.Args, "3")
}
