// Package urlutil normalizes URLs and walks their hierarchy.
package urlutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")

// Normalize strips the query and fragment while preserving scheme, host and path.
// Scheme and host are lowercased. The result is a fixed point of Normalize.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errMissingSchemeOrHost
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	return u.String(), nil
}

// MustNormalize returns raw unchanged when it cannot be normalized.
func MustNormalize(raw string) string {
	n, err := Normalize(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return n
}

// Resolve turns href into an absolute URL against base.
func Resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// Origin returns scheme://host of raw.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// SameOrigin reports whether href is relative or points at base's host.
func SameOrigin(base, href string) bool {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	if ref.Host == "" {
		return ref.Scheme == ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.EqualFold(ref.Hostname(), b.Hostname())
}

// Parent walks one step up the hierarchy: the last path segment is removed, and at
// the root one subdomain label is dropped. A registrable domain is its own parent.
func Parent(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""

	trimmed := strings.TrimRight(u.Path, "/")
	if trimmed != "" {
		dir := path.Dir(trimmed)
		if dir == "." || dir == "/" {
			u.Path = "/"
		} else {
			u.Path = dir
		}
		u.RawPath = ""
		return u.String()
	}

	host := u.Hostname()
	if net.ParseIP(host) != nil {
		u.Path = "/"
		return u.String()
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || registrable == host {
		u.Path = "/"
		return u.String()
	}
	_, rest, _ := strings.Cut(host, ".")
	if port := u.Port(); port != "" {
		rest += ":" + port
	}
	u.Host = rest
	u.Path = "/"
	return u.String()
}

// DomainParts returns the labels of host without "www." and without the public suffix,
// further split on hyphens: "www.my-site.example.co.uk" -> [my site example].
func DomainParts(raw string) []string {
	host := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")

	if suffix, _ := publicsuffix.PublicSuffix(host); suffix != "" && suffix != host {
		host = strings.TrimSuffix(host, "."+suffix)
	}

	return strings.FieldsFunc(host, func(r rune) bool { return r == '.' || r == '-' })
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// DirName derives a filesystem-safe directory name from a URL's host and path.
func DirName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.Trim(unsafeChars.ReplaceAllString(raw, "_"), "_")
	}
	name := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if p := strings.Trim(u.Path, "/"); p != "" {
		name += "_" + p
	}
	return strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
}

// Ext returns the lowercase extension of the URL path without the dot.
func Ext(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}
