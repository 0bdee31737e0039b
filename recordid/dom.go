package recordid

import (
	"bytes"

	"golang.org/x/net/html"
)

// DataAttr is the DOM attribute consulted when no URL pattern matches.
const DataAttr = "data-recordid"

// FromDOM scans a serialised DOM snapshot for the first element whose
// data-recordid attribute validates. Unparseable markup is treated as
// no-match; x/net/html is lenient enough that this is rare.
func FromDOM(snapshot []byte) (ID, bool) {
	doc, err := html.Parse(bytes.NewReader(snapshot))
	if err != nil {
		return "", false
	}

	var found ID
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == DataAttr && IsValid(a.Val) {
					found = ID(a.Val)
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	if walk(doc) {
		return found, true
	}
	return "", false
}
