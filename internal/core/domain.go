package core

import (
	"strings"
	"time"
)

type DomainStatus string

const (
	StatusUnregistered DomainStatus = "unregistered"
	StatusRegistered   DomainStatus = "registered"
	StatusUnknown      DomainStatus = "unknown"
)

// Protocol identifies the upstream a check result came from, so the gate
// can pace and back off each upstream independently.
type Protocol string

const (
	ProtocolRDAP  Protocol = "rdap"
	ProtocolWHOIS Protocol = "whois"
	ProtocolDNS   Protocol = "dns"
)

// DomainRecord tracks the observed registration state of one domain.
// Records are mutated only through the state store; the transition engine
// decides the mutations.
type DomainRecord struct {
	Status            DomainStatus `json:"status"`
	LastChecked       *time.Time   `json:"last_checked"`
	LastStatusChange  *time.Time   `json:"last_status_change"`
	FirstUnregistered *time.Time   `json:"first_unregistered"`
	NotificationSent  bool         `json:"notification_sent"`
	ConsecutiveErrors int          `json:"consecutive_errors"`
}

func NewDomainRecord() *DomainRecord {
	return &DomainRecord{Status: StatusUnknown}
}

func (r *DomainRecord) Clone() *DomainRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.LastChecked = cloneTime(r.LastChecked)
	c.LastStatusChange = cloneTime(r.LastStatusChange)
	c.FirstUnregistered = cloneTime(r.FirstUnregistered)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TrackerState is the full persisted document: every tracked domain plus
// process-wide counters.
type TrackerState struct {
	Domains     map[string]*DomainRecord `json:"domains"`
	TotalChecks uint64                   `json:"total_checks"`
	LastUpdated *time.Time               `json:"last_updated"`
}

func NewTrackerState() *TrackerState {
	return &TrackerState{Domains: make(map[string]*DomainRecord)}
}

func (s *TrackerState) Clone() *TrackerState {
	c := &TrackerState{
		Domains:     make(map[string]*DomainRecord, len(s.Domains)),
		TotalChecks: s.TotalChecks,
		LastUpdated: cloneTime(s.LastUpdated),
	}
	for name, rec := range s.Domains {
		c.Domains[name] = rec.Clone()
	}
	return c
}

// CheckResult is the classified outcome of one availability check.
// Err is informational; a failed check is a data point, not a fault.
type CheckResult struct {
	Domain         string
	Classification DomainStatus
	Protocol       Protocol
	RawDetail      string
	Duration       time.Duration
	Err            error
}

// Stats are the aggregate counts used for status reports.
type Stats struct {
	Total        int        `json:"total"`
	Unregistered int        `json:"unregistered"`
	Registered   int        `json:"registered"`
	Unknown      int        `json:"unknown"`
	TotalChecks  uint64     `json:"total_checks"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

// NormalizeDomain canonicalizes a domain name for use as a state key:
// lowercase, surrounding whitespace and the trailing dot removed.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimSuffix(d, ".")
}

// ValidateDomain applies the same syntactic sanity checks the control
// interface used in the original tracker: non-empty, contains a dot, no
// URL or path separators.
func ValidateDomain(domain string) bool {
	d := NormalizeDomain(domain)
	if d == "" || !strings.Contains(d, ".") {
		return false
	}
	if strings.ContainsAny(d, " /\\?#@:") {
		return false
	}
	if strings.HasPrefix(d, ".") || strings.Contains(d, "..") {
		return false
	}
	return true
}
