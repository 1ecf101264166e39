package checker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/leozw/domain-tracker/internal/core"
)

// WHOISProbe is the slower text-registry fallback. Classification leans on
// the parser's typed errors first and falls back to scanning the raw payload
// for the "no match" phrasings registries actually emit.
type WHOISProbe struct {
	client *whois.Client
}

func NewWHOISProbe(timeout time.Duration) *WHOISProbe {
	return &WHOISProbe{
		client: whois.NewClient().SetTimeout(timeout),
	}
}

type whoisReply struct {
	raw string
	err error
}

func (p *WHOISProbe) Probe(ctx context.Context, domain string) (core.DomainStatus, string, error) {
	// The whois client enforces its own dial/read timeout; the goroutine lets
	// us also honor cancellation of the surrounding cycle.
	ch := make(chan whoisReply, 1)
	go func() {
		raw, err := p.client.Whois(domain)
		ch <- whoisReply{raw: raw, err: err}
	}()

	var reply whoisReply
	select {
	case <-ctx.Done():
		return core.StatusUnknown, "", fmt.Errorf("whois query: %w", ctx.Err())
	case reply = <-ch:
	}

	if reply.err != nil {
		return core.StatusUnknown, "", fmt.Errorf("whois query: %w", reply.err)
	}

	return classifyWHOIS(reply.raw)
}

func classifyWHOIS(raw string) (core.DomainStatus, string, error) {
	info, err := whoisparser.Parse(raw)
	switch {
	case err == nil:
		if hasRegistrationData(info) {
			return core.StatusRegistered, whoisDetail(info), nil
		}
	case errors.Is(err, whoisparser.ErrNotFoundDomain):
		return core.StatusUnregistered, "whois: domain not found", nil
	case errors.Is(err, whoisparser.ErrReservedDomain),
		errors.Is(err, whoisparser.ErrPremiumDomain),
		errors.Is(err, whoisparser.ErrBlockedDomain):
		// Not open for ordinary registration, so not a backorder candidate.
		return core.StatusRegistered, "whois: " + err.Error(), nil
	case errors.Is(err, whoisparser.ErrDomainLimitExceed):
		return core.StatusUnknown, "", fmt.Errorf("whois query: %w", ErrRateLimited)
	}

	if rawIndicatesAvailable(raw) {
		return core.StatusUnregistered, "whois: no matching record", nil
	}

	return core.StatusUnknown, "", fmt.Errorf("whois query: %w", ErrAmbiguous)
}

func hasRegistrationData(info whoisparser.WhoisInfo) bool {
	if info.Registrar != nil && info.Registrar.Name != "" {
		return true
	}
	if info.Domain == nil {
		return false
	}
	return info.Domain.CreatedDate != "" ||
		info.Domain.ExpirationDate != "" ||
		info.Domain.UpdatedDate != "" ||
		len(info.Domain.Status) > 0 ||
		len(info.Domain.NameServers) > 0
}

func whoisDetail(info whoisparser.WhoisInfo) string {
	parts := []string{}
	if info.Registrar != nil && info.Registrar.Name != "" {
		parts = append(parts, "registrar="+info.Registrar.Name)
	}
	if info.Domain != nil && info.Domain.ExpirationDate != "" {
		parts = append(parts, "expires="+info.Domain.ExpirationDate)
	}
	return strings.Join(parts, " ")
}

// Phrasings observed across registry WHOIS servers for unregistered domains.
var availabilityPatterns = []string{
	"no match",
	"not found",
	"no data found",
	"not exist",
	"no entries found",
	"no matching record",
	"not registered",
	"no such domain",
	"domain not found",
	"is available",
}

func rawIndicatesAvailable(raw string) bool {
	lower := strings.ToLower(raw)
	for _, pattern := range availabilityPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
