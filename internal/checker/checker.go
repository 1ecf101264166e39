package checker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/config"
	"github.com/leozw/domain-tracker/internal/core"
)

// Probe performs one protocol-specific availability query. A StatusUnknown
// result with a non-nil error means the probe was inconclusive or failed;
// the caller decides whether to fall through to the next protocol.
type Probe interface {
	Probe(ctx context.Context, domain string) (core.DomainStatus, string, error)
}

// Pacer spaces calls per upstream protocol and absorbs rate-limit feedback.
// Implemented by the gate.
type Pacer interface {
	Pace(ctx context.Context, p core.Protocol) error
	Report(p core.Protocol, err error)
}

// Checker classifies one domain's registration status, trying the cheap DNS
// pre-screen (when enabled), then RDAP, then WHOIS. It never fails the
// process: every outcome is a CheckResult.
type Checker struct {
	dns       Probe
	rdap      Probe
	whois     Probe
	pacer     Pacer
	prescreen bool
	logger    *zap.Logger
}

func New(cfg config.CheckerConfig, pacer Pacer, logger *zap.Logger) *Checker {
	return &Checker{
		dns:       NewDNSProbe(cfg.DNSTimeout, cfg.DNSResolver),
		rdap:      NewRDAPProbe(cfg.RDAPTimeout),
		whois:     NewWHOISProbe(cfg.WHOISTimeout),
		pacer:     pacer,
		prescreen: cfg.DNSPrescreen,
		logger:    logger,
	}
}

// NewWithProbes wires explicit probes; used by tests and by callers that
// need a custom protocol stack.
func NewWithProbes(dnsProbe, rdapProbe, whoisProbe Probe, pacer Pacer, prescreen bool, logger *zap.Logger) *Checker {
	return &Checker{
		dns:       dnsProbe,
		rdap:      rdapProbe,
		whois:     whoisProbe,
		pacer:     pacer,
		prescreen: prescreen,
		logger:    logger,
	}
}

func (c *Checker) Check(ctx context.Context, domain string) core.CheckResult {
	start := time.Now()

	if c.prescreen && c.dns != nil {
		if res, done := c.runProbe(ctx, core.ProtocolDNS, c.dns, domain, start); done {
			return res
		}
	}

	res, done := c.runProbe(ctx, core.ProtocolRDAP, c.rdap, domain, start)
	if done {
		return res
	}
	rdapErr := res.Err

	res, done = c.runProbe(ctx, core.ProtocolWHOIS, c.whois, domain, start)
	if done {
		return res
	}

	// Both protocols inconclusive. Prefer the WHOIS error for the record,
	// it is the authoritative fallback.
	err := res.Err
	if err == nil {
		err = rdapErr
	}
	return core.CheckResult{
		Domain:         domain,
		Classification: core.StatusUnknown,
		Protocol:       core.ProtocolWHOIS,
		Duration:       time.Since(start),
		Err:            err,
	}
}

func (c *Checker) runProbe(ctx context.Context, protocol core.Protocol, probe Probe, domain string, start time.Time) (core.CheckResult, bool) {
	if c.pacer != nil {
		if err := c.pacer.Pace(ctx, protocol); err != nil {
			return core.CheckResult{
				Domain:         domain,
				Classification: core.StatusUnknown,
				Protocol:       protocol,
				Duration:       time.Since(start),
				Err:            err,
			}, false
		}
	}

	status, detail, err := probe.Probe(ctx, domain)
	if c.pacer != nil {
		c.pacer.Report(protocol, err)
	}

	if err != nil || status == core.StatusUnknown {
		// DNS inconclusiveness is expected and not worth a log line.
		if err != nil && protocol != core.ProtocolDNS {
			c.logger.Debug("probe inconclusive",
				zap.String("domain", domain),
				zap.String("protocol", string(protocol)),
				zap.Error(err),
			)
		}
		return core.CheckResult{
			Domain:         domain,
			Classification: core.StatusUnknown,
			Protocol:       protocol,
			Duration:       time.Since(start),
			Err:            err,
		}, false
	}

	return core.CheckResult{
		Domain:         domain,
		Classification: status,
		Protocol:       protocol,
		RawDetail:      detail,
		Duration:       time.Since(start),
	}, true
}
