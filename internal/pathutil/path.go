// Package pathutil derives slash-separated archive entry names from crawl targets.
package pathutil

import (
	"net/url"
	"strings"
)

// IndexSentinel is appended to names that end in a slash so that a resource
// never shares its name with the directory prefix of another entry.
const IndexSentinel = "_index"

// EntryName returns the archive entry name for a resource on host.
//
// The name is host immediately followed by resource. If the result ends with
// "/", IndexSentinel is appended:
//
//	EntryName("example.com", "/a/b/") == "example.com/a/b/_index"
//	EntryName("example.com", "/a/b")  == "example.com/a/b"
//
// EntryName is a pure function; the same inputs always yield the same name.
func EntryName(host, resource string) string {
	name := host + resource
	if strings.HasSuffix(name, "/") {
		name += IndexSentinel
	}
	return name
}

// Host returns the lowercased hostname of u, without port.
func Host(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Resource returns the resource part of u: the escaped path, or "/" when the
// path is empty, followed by "?query" when u carries a query.
func Resource(u *url.URL) string {
	if u == nil {
		return "/"
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// URLEntryName is EntryName applied to the host and resource of u.
func URLEntryName(u *url.URL) string {
	return EntryName(Host(u), Resource(u))
}
