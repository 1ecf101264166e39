package checker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openrdap/rdap"

	"github.com/leozw/domain-tracker/internal/core"
)

// RDAPProbe is the fast structured-registry query. RDAP servers answer a
// lookup for an unregistered domain with 404, which the client surfaces as
// ObjectDoesNotExist.
type RDAPProbe struct {
	client  *rdap.Client
	timeout time.Duration
}

func NewRDAPProbe(timeout time.Duration) *RDAPProbe {
	return &RDAPProbe{
		client: &rdap.Client{
			HTTP: &http.Client{Timeout: timeout},
		},
		timeout: timeout,
	}
}

func (p *RDAPProbe) Probe(ctx context.Context, domain string) (core.DomainStatus, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := &rdap.Request{
		Type:    rdap.DomainRequest,
		Query:   domain,
		Timeout: p.timeout,
	}
	req = req.WithContext(ctx)

	resp, err := p.client.Do(req)
	if err != nil {
		if isRDAPNotFound(err) {
			return core.StatusUnregistered, "rdap: domain object does not exist", nil
		}
		if looksRateLimited(err.Error()) {
			return core.StatusUnknown, err.Error(), fmt.Errorf("rdap query: %w", ErrRateLimited)
		}
		return core.StatusUnknown, "", fmt.Errorf("rdap query: %w", err)
	}

	d, ok := resp.Object.(*rdap.Domain)
	if !ok || d == nil {
		return core.StatusUnknown, "", fmt.Errorf("rdap query: %w", ErrAmbiguous)
	}

	if d.Handle != "" || d.LDHName != "" || len(d.Status) > 0 || len(d.Events) > 0 {
		return core.StatusRegistered, rdapDetail(d), nil
	}

	// A 200 with an empty object is not proof of anything; let WHOIS decide.
	return core.StatusUnknown, "", fmt.Errorf("rdap query: %w", ErrAmbiguous)
}

func isRDAPNotFound(err error) bool {
	var pe *rdap.ClientError
	if errors.As(err, &pe) {
		return pe.Type == rdap.ObjectDoesNotExist
	}
	var ve rdap.ClientError
	if errors.As(err, &ve) {
		return ve.Type == rdap.ObjectDoesNotExist
	}
	return false
}

func rdapDetail(d *rdap.Domain) string {
	parts := []string{}
	if d.LDHName != "" {
		parts = append(parts, "name="+d.LDHName)
	}
	if len(d.Status) > 0 {
		parts = append(parts, "status="+strings.Join(d.Status, ","))
	}
	return strings.Join(parts, " ")
}

func looksRateLimited(detail string) bool {
	lower := strings.ToLower(detail)
	for _, marker := range []string{"429", "too many requests", "rate limit", "quota exceeded"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
