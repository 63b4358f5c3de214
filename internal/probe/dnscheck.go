package probe

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

// DNS classes reported by Diagnose.
const (
	DNSResolves    = "RESOLVES"
	DNSNXDomain    = "NXDOMAIN"
	DNSNoARecord   = "NO_A_RECORD"
	DNSServfail    = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName = "INVALID_NAME"
)

type DNSStatus struct {
	Domain        string
	IPs           []net.IP
	CNAME         string
	Nameservers   []string
	Class         string
	ResolverError string
}

// Summary is the one-line form shown in status lines,
// e.g. "dns=NO_A_RECORD cname=edge.cdn.example ns=ns1.example,ns2.example".
func (s DNSStatus) Summary() string {
	out := "dns=" + s.Class
	if s.CNAME != "" {
		out += " cname=" + s.CNAME
	}
	if len(s.Nameservers) > 0 {
		out += " ns=" + strings.Join(s.Nameservers, ",")
	}
	return out
}

// DNSDiagnoser explains why a web target may be unreachable at the name level.
type DNSDiagnoser struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

func NewDNSDiagnoser(timeout time.Duration) *DNSDiagnoser {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DNSDiagnoser{Resolver: net.DefaultResolver, Timeout: timeout}
}

// Diagnose resolves the host of rawURL and classifies the answer.
func (d *DNSDiagnoser) Diagnose(ctx context.Context, rawURL string) DNSStatus {
	s := DNSStatus{Domain: hostOf(rawURL)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if net.ParseIP(s.Domain) != nil {
		s.IPs = []net.IP{net.ParseIP(s.Domain)}
		s.Class = DNSResolves
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	ips, err := d.Resolver.LookupIP(ctx, "ip", s.Domain)
	switch {
	case err == nil && len(ips) > 0:
		s.IPs = ips
		s.Class = DNSResolves
	case err != nil:
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServfail
			}
		}
	}

	if cname, err := d.Resolver.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := d.Resolver.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case len(s.Nameservers) > 0:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServfail
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
