package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"  example.com  ", "example.com"},
		{"example.com.", "example.com"},
		{"SUB.Example.ORG.", "sub.example.org"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDomain(tt.in), "in=%q", tt.in)
	}
}

func TestValidateDomain(t *testing.T) {
	valid := []string{"example.com", "sub.example.co.uk", "Example.COM.", "xn--bcher-kva.de"}
	for _, d := range valid {
		assert.True(t, ValidateDomain(d), "expected valid: %q", d)
	}

	invalid := []string{"", "example", "exa mple.com", "http://example.com", "example.com/path", ".example.com", "a..com", "user@example.com"}
	for _, d := range invalid {
		assert.False(t, ValidateDomain(d), "expected invalid: %q", d)
	}
}

func TestRecordClone(t *testing.T) {
	now := time.Now()
	rec := &DomainRecord{
		Status:           StatusUnregistered,
		LastChecked:      &now,
		NotificationSent: true,
	}

	clone := rec.Clone()
	later := now.Add(time.Hour)
	clone.LastChecked = &later
	clone.Status = StatusRegistered

	assert.Equal(t, StatusUnregistered, rec.Status)
	assert.True(t, rec.LastChecked.Equal(now))
}

func TestStateClone(t *testing.T) {
	st := NewTrackerState()
	st.Domains["example.com"] = NewDomainRecord()
	st.TotalChecks = 7

	clone := st.Clone()
	clone.Domains["example.com"].Status = StatusUnregistered
	clone.Domains["new.com"] = NewDomainRecord()
	clone.TotalChecks = 99

	assert.Equal(t, StatusUnknown, st.Domains["example.com"].Status)
	assert.Len(t, st.Domains, 1)
	assert.Equal(t, uint64(7), st.TotalChecks)
}
