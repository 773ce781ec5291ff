// Package urlkey canonicalizes URLs into stable (domain, path) keys used for
// deduplication across sections and against prior weeks' history.
package urlkey

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters that never change the resource identity.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "ref": {}, "source": {}, "fbclid": {}, "gclid": {},
	"mc_cid": {}, "mc_eid": {}, "_ga": {}, "_gl": {}, "affiliate": {}, "partner": {},
}

// Key normalizes rawURL into a dedupe key: lowercase domain without "www.",
// path without trailing slash, plus any non-tracking query parameters in
// sorted order. Returns "" for unparseable or schemeless input.
func Key(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(strings.ToLower(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}

	domain := strings.TrimPrefix(u.Hostname(), "www.")
	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		path = "/"
	}

	query := filteredQuery(u.Query())
	if query != "" {
		return domain + path + "?" + query
	}
	return domain + path
}

func filteredQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if _, tracked := trackingParams[k]; tracked {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		for j, v := range values[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
	}
	return b.String()
}

// Domain returns the lowercase host of rawURL without a "www." prefix.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Path returns the path component of rawURL without a trailing slash,
// defaulting to "/".
func Path(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

// Same reports whether two URLs resolve to the same dedupe key.
func Same(a, b string) bool {
	ka, kb := Key(a), Key(b)
	return ka != "" && ka == kb
}
