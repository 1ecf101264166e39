package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozw/domain-tracker/internal/core"
)

func result(domain string, c core.DomainStatus, err error) core.CheckResult {
	return core.CheckResult{
		Domain:         domain,
		Classification: c,
		Protocol:       core.ProtocolRDAP,
		Err:            err,
	}
}

func TestBackorderScenario(t *testing.T) {
	rec := core.NewDomainRecord()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Registered twice: no notification, episode markers stay clear.
	out := ApplyResult(rec, result("example.com", core.StatusRegistered, nil), t0)
	assert.False(t, out.NotificationDue)
	assert.True(t, out.StatusChanged)
	assert.Equal(t, core.StatusRegistered, rec.Status)
	assert.Nil(t, rec.FirstUnregistered)

	t1 := t0.Add(time.Minute)
	out = ApplyResult(rec, result("example.com", core.StatusRegistered, nil), t1)
	assert.False(t, out.NotificationDue)
	assert.False(t, out.StatusChanged)
	assert.Equal(t, t0, *rec.LastStatusChange)
	assert.Equal(t, t1, *rec.LastChecked)

	// Becomes unregistered: exactly one notification, episode marked.
	t2 := t1.Add(time.Minute)
	out = ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), t2)
	require.True(t, out.NotificationDue)
	assert.Equal(t, "example.com", out.Payload.Domain)
	assert.Equal(t, t2, out.Payload.FirstSeen)
	assert.Equal(t, core.StatusUnregistered, rec.Status)
	assert.True(t, rec.NotificationSent)
	require.NotNil(t, rec.FirstUnregistered)
	assert.Equal(t, t2, *rec.FirstUnregistered)

	// Still unregistered next cycle: no second notification.
	t3 := t2.Add(time.Minute)
	out = ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), t3)
	assert.False(t, out.NotificationDue)
	assert.Equal(t, t2, *rec.FirstUnregistered, "episode start is immutable")
	assert.Equal(t, t2, *rec.LastStatusChange)
}

func TestNotifiesAtMostOncePerEpisode(t *testing.T) {
	rec := core.NewDomainRecord()
	now := time.Now().UTC()

	notified := 0
	for i := 0; i < 10; i++ {
		out := ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), now.Add(time.Duration(i)*time.Minute))
		if out.NotificationDue {
			notified++
		}
	}
	assert.Equal(t, 1, notified)
}

func TestIdempotentReplay(t *testing.T) {
	rec := core.NewDomainRecord()
	now := time.Now().UTC()

	ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), now)
	require.True(t, rec.NotificationSent)
	change := *rec.LastStatusChange

	out := ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), now.Add(time.Second))
	assert.False(t, out.NotificationDue)
	assert.Equal(t, change, *rec.LastStatusChange)
}

func TestReRegistrationClosesEpisode(t *testing.T) {
	rec := core.NewDomainRecord()
	now := time.Now().UTC()

	ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), now)
	require.True(t, rec.NotificationSent)

	out := ApplyResult(rec, result("example.com", core.StatusRegistered, nil), now.Add(time.Minute))
	assert.False(t, out.NotificationDue, "re-registration is informational only")
	assert.True(t, out.StatusChanged)
	assert.Equal(t, core.StatusRegistered, rec.Status)
	assert.False(t, rec.NotificationSent)
	assert.Nil(t, rec.FirstUnregistered)

	// The next unregistered observation is a new episode and notifies again.
	out = ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), now.Add(2*time.Minute))
	assert.True(t, out.NotificationDue)
}

func TestUnknownLeavesStatusUntouched(t *testing.T) {
	rec := core.NewDomainRecord()
	now := time.Now().UTC()

	ApplyResult(rec, result("example.com", core.StatusRegistered, nil), now)
	require.Equal(t, core.StatusRegistered, rec.Status)

	checkErr := errors.New("whois query: connection refused")
	for i := 1; i <= 3; i++ {
		ts := now.Add(time.Duration(i) * time.Minute)
		out := ApplyResult(rec, result("example.com", core.StatusUnknown, checkErr), ts)
		assert.False(t, out.NotificationDue)
		assert.Equal(t, core.StatusRegistered, rec.Status, "status is untouched on checker failure")
		assert.Equal(t, i, rec.ConsecutiveErrors)
		assert.Equal(t, ts, *rec.LastChecked, "lastChecked advances on every completed check")
	}

	// A successful check resets the error counter.
	ApplyResult(rec, result("example.com", core.StatusRegistered, nil), now.Add(time.Hour))
	assert.Equal(t, 0, rec.ConsecutiveErrors)
}

func TestFirstUnregisteredSetOncePerEpisode(t *testing.T) {
	rec := core.NewDomainRecord()
	now := time.Now().UTC()

	ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), now)
	first := *rec.FirstUnregistered

	// Interleave an unknown observation; the episode marker must not move.
	ApplyResult(rec, result("example.com", core.StatusUnknown, errors.New("timeout")), now.Add(time.Minute))
	ApplyResult(rec, result("example.com", core.StatusUnregistered, nil), now.Add(2*time.Minute))
	assert.Equal(t, first, *rec.FirstUnregistered)
}
