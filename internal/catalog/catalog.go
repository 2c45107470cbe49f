// Package catalog lists the grid archives available on the remote PRISM
// index for one variable and year.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/dohdata/prismzonal/internal/config"
	"github.com/dohdata/prismzonal/internal/util"
)

// RemoteFile is one downloadable archive discovered on a listing page.
type RemoteFile struct {
	Name string // file name as it appears in the href
}

// Listing is the result of one catalog query: the resolved listing URL and
// the files found on it, in page order.
type Listing struct {
	URL   string
	Files []RemoteFile
}

// URLFor resolves the full download URL for a file on this listing.
func (l Listing) URLFor(name string) (string, error) {
	base, err := url.Parse(l.URL)
	if err != nil {
		return "", fmt.Errorf("parse listing URL %s: %w", l.URL, err)
	}
	ref, err := base.Parse(name)
	if err != nil {
		return "", fmt.Errorf("resolve %s against %s: %w", name, l.URL, err)
	}
	return ref.String(), nil
}

// ListFiles fetches the directory listing for cfg.Variable/cfg.Year and
// returns the archive names containing the grid marker substring. The
// variable is normalised to lower case; no further input validation is done,
// a bad year simply produces an empty or failed listing. One network
// request, no retry.
func ListFiles(ctx context.Context, client *http.Client, cfg config.Config, logger *slog.Logger) (Listing, error) {
	variable := strings.ToLower(cfg.Variable)
	listingURL := fmt.Sprintf("%s/%s/%d/", strings.TrimSuffix(cfg.BaseURL, "/"), variable, cfg.Year)
	l := logger.With(slog.String("listing_url", listingURL))
	l.Debug("Fetching catalog listing.")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return Listing{}, fmt.Errorf("create request %s: %w", listingURL, err)
	}
	req.Header.Set("User-Agent", util.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return Listing{}, fmt.Errorf("catalog GET %s: %w", listingURL, err)
	}
	bodyBytes, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Listing{}, fmt.Errorf("catalog status %s: %s", resp.Status, listingURL)
	}
	if readErr != nil {
		return Listing{}, fmt.Errorf("catalog read %s: %w", listingURL, readErr)
	}

	root, err := html.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return Listing{}, fmt.Errorf("catalog parse HTML %s: %w", listingURL, err)
	}

	listing := Listing{URL: listingURL}
	for _, href := range util.ParseLinks(root, config.FileMarker) {
		// Index pages occasionally emit absolute hrefs; keep only the name.
		name := href
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		if name == "" {
			continue
		}
		listing.Files = append(listing.Files, RemoteFile{Name: name})
	}

	l.Info("Catalog listing complete.", slog.Int("files", len(listing.Files)))
	return listing, nil
}
