// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fetch resolves a short init-source reference ("user/repo",
// "registry/module", a bare https URL, ...) into a list of candidate raw
// URLs, fetches the first one that responds 200 with a body that parses
// as KDL, and writes it to the target config path (spec.md §4.13).
//
// Every candidate is fetched through an SSRF-hardened client: scheme must
// be https unless explicitly overridden, resolved addresses are checked
// against loopback/link-local/private/multicast/unspecified ranges
// before the connection is allowed to proceed, redirects are capped and
// re-validated at each hop, and the response body is capped in size.
// None of the teacher or pack repos implement outbound-fetch SSRF
// hardening (the teacher's own runRemoteInit in cmd/cie/init.go talks to
// a trusted local server, not arbitrary attacker-influenced hosts), so
// this is built directly on net/http per DESIGN.md.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	declerrors "github.com/nixval/declarch/internal/errors"
	"github.com/nixval/declarch/pkg/kdl"
)

const (
	defaultMaxBytes  = 1 << 20 // 1 MiB
	defaultTimeout   = 20 * time.Second
	maxRedirects     = 5
	registryOrg      = "declarch-community"
	registryRepoName = "declarch-packages"
)

// Candidate is one URL to try, in order, for a given init source.
type Candidate struct {
	URL string
}

// Fetcher resolves and downloads init sources.
type Fetcher struct {
	client          *http.Client
	maxBytes        int64
	timeout         time.Duration
	userAgent       string
	allowInsecure   bool
	allowInsecureFn func() bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxBytes overrides the response-size cap (default 1 MiB).
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithTimeout overrides the total per-candidate timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithUserAgent sets the User-Agent header (declarch wires in
// paths.Resolver.IdentityString() here, per SPEC_FULL.md's C1/C13 note).
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// New builds a Fetcher with an SSRF-hardened *http.Client. The insecure
// (non-https) escape hatch is read lazily via os.Getenv so tests can
// override it without touching the real environment.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		maxBytes:  defaultMaxBytes,
		timeout:   defaultTimeout,
		userAgent: "declarch/dev",
		allowInsecureFn: func() bool {
			return os.Getenv("DECLARCH_ALLOW_INSECURE_HTTP") == "1"
		},
	}
	for _, o := range opts {
		o(f)
	}

	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: controlRejectUnsafe,
	}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}
	f.client = &http.Client{
		Timeout:   f.timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if err := f.validateURL(req.URL); err != nil {
				return err
			}
			return nil
		},
	}
	return f
}

// controlRejectUnsafe is passed to net.Dialer.Control; it runs after DNS
// resolution but before the socket connects, so every resolved address —
// not just the literal host string — is checked.
func controlRejectUnsafe(network, address string, c syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("fetch: could not parse resolved address %q", address)
	}
	if reason := unsafeAddressReason(ip); reason != "" {
		return fmt.Errorf("fetch: refusing to connect to %s: %s", ip, reason)
	}
	return nil
}

func unsafeAddressReason(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback address"
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return "link-local address"
	case ip.IsPrivate():
		return "private address"
	case ip.IsMulticast():
		return "multicast address"
	case ip.IsUnspecified():
		return "unspecified address"
	default:
		return ""
	}
}

func (f *Fetcher) validateURL(u *url.URL) error {
	if u.Scheme != "https" {
		if !(f.allowInsecureFn() && u.Scheme == "http") {
			return declerrors.NewSSRFRefused(u.String(), "scheme must be https (set DECLARCH_ALLOW_INSECURE_HTTP=1 to allow http)")
		}
	}
	host := u.Hostname()
	ips, err := net.LookupIP(host)
	if err != nil {
		return declerrors.NewSSRFRefused(u.String(), fmt.Sprintf("could not resolve host: %v", err))
	}
	for _, ip := range ips {
		if reason := unsafeAddressReason(ip); reason != "" {
			return declerrors.NewSSRFRefused(u.String(), fmt.Sprintf("resolved address %s is %s", ip, reason))
		}
	}
	return nil
}

// CandidatesFor expands a short init-source reference into the ordered
// list of raw-content URLs to try (spec.md §4.13).
func CandidatesFor(source string) ([]Candidate, error) {
	if strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://") {
		return []Candidate{{URL: source}}, nil
	}

	if strings.HasPrefix(source, "gitlab.com/") {
		rest := strings.TrimPrefix(source, "gitlab.com/")
		return gitCandidates(rest, "https://gitlab.com/%s/-/raw/%s/%s")
	}

	parts := strings.Split(source, "/")
	switch len(parts) {
	case 2:
		// Ambiguous between "user/repo" and "registry/module"; try both
		// interpretations, repo form first (more specific path shape).
		cands, err := gitCandidates(source, "https://raw.githubusercontent.com/%s/%s/%s")
		if err != nil {
			return nil, err
		}
		cands = append(cands, Candidate{URL: registryURL(parts[1])})
		return cands, nil
	case 3:
		return gitCandidates(source, "https://raw.githubusercontent.com/%s/%s/%s")
	default:
		return nil, declerrors.NewInputError("Invalid init source", fmt.Sprintf("cannot parse %q", source),
			"Use 'user/repo', 'user/repo:variant', 'user/repo/branch', a gitlab.com/... reference, 'registry/module', or a full https:// URL")
	}
}

// gitCandidates handles the shared "owner/repo[:variant][/branch]" shape
// for both GitHub and GitLab raw-content URLs, given a
// "<urlTemplate>(ownerRepo, branch, filename)" printf template.
func gitCandidates(ref string, urlTemplate string) ([]Candidate, error) {
	owner, repo, variant, branch, err := parseOwnerRepo(ref)
	if err != nil {
		return nil, err
	}
	ownerRepo := owner + "/" + repo

	filename := "declarch.kdl"
	if variant != "" {
		filename = "declarch-" + variant + ".kdl"
	}

	var branches []string
	if branch != "" {
		branches = []string{branch}
	} else {
		branches = []string{"main", "master"}
	}

	cands := make([]Candidate, 0, len(branches))
	for _, b := range branches {
		cands = append(cands, Candidate{URL: fmt.Sprintf(urlTemplate, ownerRepo, b, filename)})
	}
	return cands, nil
}

// parseOwnerRepo splits "owner/repo", "owner/repo:variant",
// "owner/repo/branch" and "owner/repo:variant/branch" (a branch is
// assumed if a third path segment is present, or if a "/" follows the
// variant).
func parseOwnerRepo(ref string) (owner, repo, variant, branch string, err error) {
	variantSplit := strings.SplitN(ref, ":", 2)
	pathPart := variantSplit[0]
	if len(variantSplit) == 2 {
		variant = variantSplit[1]
		if i := strings.Index(variant, "/"); i >= 0 {
			variant, branch = variant[:i], variant[i+1:]
		}
	}

	segs := strings.Split(pathPart, "/")
	switch len(segs) {
	case 2:
		owner, repo = segs[0], segs[1]
	case 3:
		owner, repo, branch = segs[0], segs[1], segs[2]
	default:
		return "", "", "", "", declerrors.NewInputError("Invalid init source",
			fmt.Sprintf("cannot parse owner/repo from %q", ref), "Use 'user/repo', 'user/repo:variant', or 'user/repo/branch'")
	}
	if owner == "" || repo == "" {
		return "", "", "", "", declerrors.NewInputError("Invalid init source",
			fmt.Sprintf("cannot parse owner/repo from %q", ref), "Use 'user/repo', 'user/repo:variant', or 'user/repo/branch'")
	}
	return owner, repo, variant, branch, nil
}

func registryURL(module string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/main/modules/%s.kdl", registryOrg, registryRepoName, module)
}

// Fetch tries each candidate in order and returns the raw body of the
// first one that responds 200 and parses as KDL. A 404 falls through to
// the next candidate; any other non-200 status aborts immediately with
// RemoteFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, source string) (body []byte, chosenURL string, err error) {
	cands, err := CandidatesFor(source)
	if err != nil {
		return nil, "", err
	}

	for _, c := range cands {
		u, perr := url.Parse(c.URL)
		if perr != nil {
			return nil, "", declerrors.NewInputError("Invalid candidate URL", c.URL, "This is a bug in the init-source resolver")
		}
		if verr := f.validateURL(u); verr != nil {
			return nil, "", verr
		}

		data, status, ferr := f.fetchOne(ctx, c.URL)
		if ferr != nil {
			return nil, "", ferr
		}
		if status == http.StatusNotFound {
			continue
		}
		if status != http.StatusOK {
			return nil, "", declerrors.NewRemoteFetchFailed(c.URL, status)
		}
		if _, perr := kdl.Parse(c.URL, data); perr != nil {
			continue
		}
		return data, c.URL, nil
	}

	return nil, "", declerrors.NewRemoteFetchFailed(source, http.StatusNotFound)
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, declerrors.NewNetworkError("Cannot build request", rawURL, "This is unexpected; please report it", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, declerrors.NewNetworkError("Cannot reach remote source", rawURL, "Check network connectivity and the source reference", err)
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, 0, declerrors.NewNetworkError("Failed reading response body", rawURL, "The connection may have been interrupted; retry", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, 0, declerrors.NewRemoteFetchFailed(rawURL, resp.StatusCode)
	}
	return data, resp.StatusCode, nil
}

// WriteConfig writes body to path, parse-checking it first. If path
// already has content, it is restored verbatim on parse failure so a bad
// fetch never clobbers a working config (spec.md §4.13).
func WriteConfig(path string, body []byte) error {
	if _, err := kdl.Parse(path, body); err != nil {
		return declerrors.NewInvalidConfig("Fetched source is not valid KDL",
			fmt.Sprintf("%s failed to parse", path), "Check the source repository's declarch.kdl for syntax errors", err)
	}

	var previous []byte
	hadPrevious := false
	if existing, err := os.ReadFile(path); err == nil {
		previous = existing
		hadPrevious = true
	}

	if err := os.WriteFile(path, body, 0o640); err != nil {
		return declerrors.NewPermissionError("Cannot write configuration", path, "Check directory permissions and available disk space", err)
	}

	if _, err := kdl.Parse(path, body); err != nil {
		if hadPrevious {
			_ = os.WriteFile(path, previous, 0o640)
		}
		return declerrors.NewInvalidConfig("Fetched source failed post-write parse check",
			path, "The write may have been truncated; retry", err)
	}
	return nil
}
