package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohdata/prismzonal/internal/config"
)

const listingPage = `<html><head><title>Index of /daily/tmax/2011</title></head><body>
<h1>Index of /daily/tmax/2011</h1><pre>
<a href="../">Parent Directory</a>
<a href="PRISM_tmax_stable_4kmD2_20110122_bil.zip">PRISM_tmax_stable_4kmD2_20110122_bil.zip</a>
<a href="PRISM_tmax_stable_4kmD2_20110121_bil.zip">PRISM_tmax_stable_4kmD2_20110121_bil.zip</a>
<a href="PRISM_tmax_stable_4kmD2_20110121_bil.zip.info.txt">PRISM_tmax_stable_4kmD2_20110121_bil.zip.info.txt</a>
<a href="readme.html">readme.html</a>
</pre></body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListFiles(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, listingPage)
	}))
	defer srv.Close()

	cfg := config.Config{BaseURL: srv.URL, Variable: "TMAX", Year: 2011}
	listing, err := ListFiles(context.Background(), srv.Client(), cfg, testLogger())
	require.NoError(t, err)

	// Variable is lower-cased in the listing path.
	assert.Equal(t, "/tmax/2011/", gotPath)
	assert.Equal(t, srv.URL+"/tmax/2011/", listing.URL)

	// Page order preserved, navigation links excluded. The .info.txt link
	// contains the marker too; the catalog does not second-guess that, the
	// fetcher simply downloads whatever the listing offered.
	names := make([]string, 0, len(listing.Files))
	for _, f := range listing.Files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"PRISM_tmax_stable_4kmD2_20110122_bil.zip",
		"PRISM_tmax_stable_4kmD2_20110121_bil.zip",
		"PRISM_tmax_stable_4kmD2_20110121_bil.zip.info.txt",
	}, names)
}

func TestListFiles_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := config.Config{BaseURL: srv.URL, Variable: "tmax", Year: 1850}
	_, err := ListFiles(context.Background(), srv.Client(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestURLFor(t *testing.T) {
	l := Listing{URL: "https://example.org/daily/tmax/2011/"}
	u, err := l.URLFor("PRISM_tmax_stable_4kmD2_20110121_bil.zip")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/daily/tmax/2011/PRISM_tmax_stable_4kmD2_20110121_bil.zip", u)
}
