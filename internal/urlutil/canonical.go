package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidAddress is returned for addresses that are not absolute http(s) URLs.
var ErrInvalidAddress = errors.New("address must be an absolute http or https url")

// CacheBustParam is the query parameter appended to alternate probe URLs.
const CacheBustParam = "__cb"

// Address is a validated target address.
type Address struct {
	Raw       string
	Canonical string
	Host      string
}

// Parse validates a raw address and derives its canonical form and host.
func Parse(raw string) (Address, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return Address{}, err
	}
	u, _ := url.Parse(canonical)
	return Address{Raw: strings.TrimSpace(raw), Canonical: canonical, Host: u.Hostname()}, nil
}

// Canonicalize returns the canonical form of an address. Scheme and host are
// lowercased, default ports and fragments are dropped and a trailing slash is
// trimmed, so the bare host and the root path compare equal.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", ErrInvalidAddress
	}

	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+u.Port())
	}

	u.Fragment = ""
	u.RawFragment = ""

	if strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}

	return u.String(), nil
}

// CacheBust appends a timestamp query parameter so that intermediaries do not
// answer from cache.
func CacheBust(raw string, now time.Time) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	q := u.Query()
	q.Set(CacheBustParam, strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ImageProbeURL returns the resource an image probe should load: the site
// favicon for root addresses, the address itself otherwise.
func ImageProbeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = path.Join("/", "favicon.ico")
		u.RawQuery = ""
	}
	u.Fragment = ""
	return u.String(), nil
}
