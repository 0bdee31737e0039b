// Package recordid extracts and validates Salesforce record identifiers
// from page context. The tab URL is the primary source; a serialised DOM
// snapshot is the fallback.
//
// A record identifier is either 15 case-sensitive or 18 case-insensitive
// alphanumeric characters. The 18-character form carries a checksum suffix
// which is never verified here; only length and charset are checked.
package recordid

import (
	"net/url"
	"regexp"
	"strings"
)

// ID is a validated Salesforce record identifier.
type ID string

// SharingPath is the host-relative path template for the sharing detail page.
const SharingPath = "/p/share/CustomObjectSharingDetail"

var validID = regexp.MustCompile(`^[A-Za-z0-9]{15}(?:[A-Za-z0-9]{3})?$`)

// IsValid reports whether s has the exact shape of a record identifier.
// Lengths 16 and 17 are rejected: real identifiers are 15 or 18 characters,
// nothing in between.
func IsValid(s string) bool {
	return validID.MatchString(s)
}

// UIMode classifies the host UI variant a URL belongs to.
type UIMode int

const (
	ModeNone      UIMode = iota // not a recognised Salesforce host
	ModeLightning               // modern Lightning Experience
	ModeClassic                 // legacy Classic / Visualforce hosts
)

func (m UIMode) String() string {
	switch m {
	case ModeLightning:
		return "lightning"
	case ModeClassic:
		return "classic"
	}
	return "none"
}

// pattern is one URL shape that may carry a record identifier. Patterns are
// tried in declaration order; within a pattern the full URL is tried before
// the percent-decoded fragment, so earlier patterns always take precedence
// regardless of which source matched.
type pattern struct {
	re *regexp.Regexp
	// classicOnly patterns apply only on classic host shapes. The bare
	// trailing-token pattern would otherwise match arbitrary alphanumeric
	// path segments of the right length on any site.
	classicOnly bool
}

var patterns = []pattern{
	// /lightning/r/Account/001.../view
	{re: regexp.MustCompile(`/lightning/r/[A-Za-z0-9_]+/([A-Za-z0-9]+)/view`)},
	// /r/001.../view, the object-less variant used by some related lists.
	{re: regexp.MustCompile(`/r/([A-Za-z0-9]+)/view`)},
	// sObject/001.../view: console-style paths, usually percent-encoded
	// inside a /one/one.app fragment.
	{re: regexp.MustCompile(`sObject/([A-Za-z0-9]+)/view`)},
	// https://x.my.salesforce.com/001...: Classic serves records at the
	// bare identifier path. Known false-positive risk: any trailing token of
	// the right shape matches, so this is gated to classic hosts.
	{re: regexp.MustCompile(`/([A-Za-z0-9]+)/?$`), classicOnly: true},
}

// Mode classifies rawURL by its host shape.
func Mode(rawURL string) UIMode {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ModeNone
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasSuffix(host, ".lightning.force.com"):
		return ModeLightning
	case strings.HasSuffix(host, ".my.salesforce.com"),
		strings.HasSuffix(host, ".salesforce.com"),
		strings.HasSuffix(host, ".visualforce.com"),
		strings.HasSuffix(host, ".force.com"):
		return ModeClassic
	}
	return ModeNone
}

// FromURL extracts a record identifier from rawURL. Each pattern is tried
// against the full URL, then against the decoded fragment, before moving to
// the next pattern. The first capture that validates wins.
func FromURL(rawURL string) (ID, bool) {
	if rawURL == "" {
		return "", false
	}

	sources := []string{rawURL}
	if u, err := url.Parse(rawURL); err == nil && u.Fragment != "" {
		// u.Fragment is already percent-decoded by net/url.
		sources = append(sources, u.Fragment)
	}

	mode := Mode(rawURL)
	for _, p := range patterns {
		if p.classicOnly && mode != ModeClassic {
			continue
		}
		for _, src := range sources {
			for _, m := range p.re.FindAllStringSubmatch(src, -1) {
				if IsValid(m[1]) {
					return ID(m[1]), true
				}
			}
		}
	}
	return "", false
}

// Extract resolves the identifier for a page view: URL patterns first, then
// the data-recordid attribute in the DOM snapshot. snapshot may be nil.
func Extract(rawURL string, snapshot []byte) (ID, bool) {
	if id, ok := FromURL(rawURL); ok {
		return id, true
	}
	if len(snapshot) > 0 {
		return FromDOM(snapshot)
	}
	return "", false
}

var lightningRecordPath = regexp.MustCompile(`^/lightning/r(?:/[A-Za-z0-9_]+)?/[A-Za-z0-9]+/view/?$`)

// IsRecordPage reports whether rawURL looks like a record-detail page for
// its UI mode. Lightning pages must match the record path shape (or carry a
// record reference in a console fragment); classic pages qualify whenever a
// valid identifier is extractable. Non-Salesforce hosts never qualify.
func IsRecordPage(rawURL string) bool {
	switch Mode(rawURL) {
	case ModeLightning:
		u, err := url.Parse(rawURL)
		if err != nil {
			return false
		}
		if lightningRecordPath.MatchString(u.Path) {
			return true
		}
		if strings.Contains(u.Path, "/one/one.app") {
			_, ok := FromURL(rawURL)
			return ok
		}
		return false
	case ModeClassic:
		_, ok := FromURL(rawURL)
		return ok
	}
	return false
}

// SharingURL builds the sharing-detail URL for id on the page's origin.
func SharingURL(origin string, id ID) string {
	return strings.TrimSuffix(origin, "/") + SharingPath + "?parentId=" + string(id)
}

// Origin returns the scheme://host part of rawURL, or "" if unparseable.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
