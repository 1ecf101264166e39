package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/leozw/domain-tracker/internal/core"
)

// DNSProbe is a cheap pre-screen: a delegated NS answer proves the domain is
// registered without spending RDAP or WHOIS quota. Absence of an answer
// proves nothing (registered domains can lack delegation), so every other
// outcome falls through to the registry protocols.
type DNSProbe struct {
	client   *dns.Client
	resolver string
}

func NewDNSProbe(timeout time.Duration, resolver string) *DNSProbe {
	return &DNSProbe{
		client:   &dns.Client{Timeout: timeout},
		resolver: resolver,
	}
}

func (p *DNSProbe) Probe(ctx context.Context, domain string) (core.DomainStatus, string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeNS)

	r, _, err := p.client.ExchangeContext(ctx, m, p.resolver)
	if err != nil {
		return core.StatusUnknown, "", fmt.Errorf("dns query: %w", err)
	}
	if r == nil {
		return core.StatusUnknown, "", fmt.Errorf("dns query: %w", ErrAmbiguous)
	}

	if r.Rcode == dns.RcodeSuccess && len(r.Answer) > 0 {
		return core.StatusRegistered, fmt.Sprintf("dns: %d NS records", len(r.Answer)), nil
	}

	// NXDOMAIN makes the domain a candidate, but only the registry can
	// confirm it is open for registration.
	return core.StatusUnknown, "", fmt.Errorf("dns query: %w", ErrAmbiguous)
}
