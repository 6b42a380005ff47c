package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// Symptom names a class of probe failure.
type Symptom string

const (
	SymptomTimeout   Symptom = "timeout"
	SymptomAbort     Symptom = "abort"
	SymptomDNS       Symptom = "dns"
	SymptomRefused   Symptom = "connection-refused"
	SymptomTransport Symptom = "transport"
	SymptomTLS       Symptom = "tls"
	SymptomRequest   Symptom = "request"
	SymptomInternal  Symptom = "internal"
)

// DefaultAlternateSymptoms are the failures that may be caused by the
// server's own network path rather than by the target.
var DefaultAlternateSymptoms = []Symptom{
	SymptomTimeout,
	SymptomAbort,
	SymptomDNS,
	SymptomRefused,
	SymptomTransport,
}

// ParseSymptoms parses a comma separated list of symptom names.
func ParseSymptoms(s string) ([]Symptom, error) {
	known := map[Symptom]bool{
		SymptomTimeout: true, SymptomAbort: true, SymptomDNS: true, SymptomRefused: true,
		SymptomTransport: true, SymptomTLS: true, SymptomRequest: true, SymptomInternal: true,
	}
	var out []Symptom
	for _, part := range strings.Split(s, ",") {
		name := Symptom(strings.TrimSpace(strings.ToLower(part)))
		if name == "" {
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("unknown probe symptom %q", name)
		}
		out = append(out, name)
	}
	return out, nil
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// classifyError maps a transport error to a symptom and a short detail.
func classifyError(ctx context.Context, err error, timeout time.Duration) (Symptom, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return SymptomRequest, reqErr.err.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return SymptomTimeout, fmt.Sprintf("no response within %s", timeout)
	}
	if errors.Is(err, context.Canceled) {
		return SymptomAbort, "request canceled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return SymptomTimeout, dnsErr.Error()
		}
		return SymptomDNS, dnsErr.Error()
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return SymptomRefused, innermost(err)
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
		recordErr        tls.RecordHeaderError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) || errors.As(err, &invalidCert) ||
		errors.As(err, &verifyErr) || errors.As(err, &recordErr) {
		return SymptomTLS, innermost(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return SymptomTimeout, innermost(err)
	}
	return SymptomTransport, innermost(err)
}

// innermost strips the url.Error wrapper, which repeats method and address.
func innermost(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
