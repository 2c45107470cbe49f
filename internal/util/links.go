package util

import (
	"strings"

	"golang.org/x/net/html"
)

// ParseLinks finds anchor hrefs containing marker within an HTML node tree.
// It performs a depth-first search for <a> tags and checks their href
// attribute. Parent-directory and root links are never returned, so a plain
// directory index page can be scraped without picking up navigation.
// Results are in document order.
func ParseLinks(n *html.Node, marker string) []string {
	var out []string
	var walk func(*html.Node)

	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key == "href" {
					val := a.Val
					if val == "/" || val == "../" || val == ".." {
						break
					}
					if strings.Contains(strings.ToLower(val), strings.ToLower(marker)) {
						out = append(out, val)
					}
					break
				}
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return out
}
