// internal/frontier/scope.go
package frontier

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope is the registrable-domain boundary of a crawl.
type Scope struct {
	startHost         string
	rootDomain        string
	includeSubdomains bool
}

// NewScope derives the scope from the start URL. The registrable domain
// (eTLD+1) comes from the Public Suffix List, so hosts like example.co.uk
// are handled correctly. IP addresses and single-label hosts such as
// localhost are scoped to themselves.
func NewScope(startURL string, includeSubdomains bool) (*Scope, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("start URL must have a hostname: %s", startURL)
	}

	root := host
	if net.ParseIP(host) == nil {
		if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			root = domain
		}
	}
	return &Scope{startHost: host, rootDomain: root, includeSubdomains: includeSubdomains}, nil
}

// Contains reports whether u belongs to the crawl. Without subdomains only
// the start host and the bare registrable domain qualify.
func (s *Scope) Contains(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == s.startHost || host == s.rootDomain {
		return true
	}
	// The dot prefix keeps "notexample.com" out of "example.com".
	return s.includeSubdomains && strings.HasSuffix(host, "."+s.rootDomain)
}

// RootDomain returns the eTLD+1 defining the scope.
func (s *Scope) RootDomain() string {
	return s.rootDomain
}
