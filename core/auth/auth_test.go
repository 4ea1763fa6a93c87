package auth

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/schoolhub/schoolhub/core"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, 15*time.Minute)
	rl.now = func() time.Time { return now }

	key := "jan@school.nl"
	for i := 0; i < 4; i++ {
		rl.Record(key)
		now = now.Add(time.Minute)
	}
	assert.False(t, rl.IsLimited(key))
	rl.Record(key)
	assert.True(t, rl.IsLimited(key))
	assert.Equal(t, 11*time.Minute, rl.TimeUntilReset(key)) // first attempt at 9:00, now 9:04

	// the first attempt leaves the window
	now = now.Add(11 * time.Minute)
	assert.False(t, rl.IsLimited(key))

	rl.Clear(key)
	assert.Zero(t, rl.TimeUntilReset(key))
	assert.False(t, rl.IsLimited(key))

	rl.Record("a")
	rl.Record("b")
	assert.Equal(t, 2, rl.Len())
	now = now.Add(time.Hour)
	rl.Cleanup()
	assert.Equal(t, 0, rl.Len())
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(5, 15*time.Minute)
	key := "jan@school.nl"

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(key) {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed)
	assert.True(t, rl.IsLimited(key))
	assert.False(t, rl.Allow(key))

	rl.Clear(key)
	assert.True(t, rl.Allow(key))
}

func TestCredentials(t *testing.T) {
	c := Credentials{Username: "  <Jan@School.NL>  ", Password: " secret "}
	c.Sanitize()
	assert.Equal(t, "jan@school.nl", c.Username)
	assert.Equal(t, " secret ", c.Password)
	assert.NoError(t, c.Validate())

	long := Credentials{Username: strings.Repeat("a", 300)}
	long.Sanitize()
	assert.Len(t, long.Username, 255)

	err := Credentials{Password: "abc"}.Validate()
	vErr, ok := err.(*core.ValidationError)
	if assert.True(t, ok) {
		assert.Equal(t, []core.FieldError{
			{Field: "username", Error: ErrIdentifierRequired.Error()},
			{Field: "password", Error: ErrPasswordTooShort.Error()},
		}, vErr.Fields)
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "&lt;script&gt;alert(&quot;x&quot;)&lt;&#x2F;script&gt; &amp; &#x27;",
		SanitizeInput(`<script>alert("x")</script> & '`))
}

func TestLockoutMessage(t *testing.T) {
	assert.Equal(t, "Too many login attempts. Try again in 15 minutes.", LockoutMessage(15*time.Minute))
	assert.Equal(t, "Too many login attempts. Try again in 3 minutes.", LockoutMessage(2*time.Minute+time.Second))
	assert.Equal(t, "Too many login attempts. Try again in 1 minutes.", LockoutMessage(0))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 9 * time.Second, want: "9s"},
		{in: 4*time.Minute + 10*time.Second, want: "4m 10s"},
		{in: time.Hour + 5*time.Minute, want: "1h 5m"},
		{in: 51 * time.Hour, want: "2d 3h"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "JD", Initials("jan de vries", ""))
	assert.Equal(t, "J", Initials("", "jan@school.nl"))
	assert.Equal(t, "Jan", DisplayName(" Jan ", "x@y.z"))
	assert.Equal(t, "jan", DisplayName("", "jan@school.nl"))
}

func TestCSRF(t *testing.T) {
	token, err := NewCSRFToken()
	assert.NoError(t, err)
	assert.Len(t, token, 64)
	assert.True(t, CompareTokens(token, token))
	assert.False(t, CompareTokens(token, token[:63]+"x"))
	assert.False(t, CompareTokens("", ""))
}

func TestSessionRules(t *testing.T) {
	rules := SessionRules{Timeout: 8 * time.Hour, RefreshWindow: 7 * 24 * time.Hour, RefreshThreshold: 5 * time.Minute}
	now := time.Now()

	assert.False(t, rules.ShouldRefresh(now.Add(time.Hour), now))
	assert.True(t, rules.ShouldRefresh(now.Add(4*time.Minute), now))
	assert.True(t, rules.CanRefresh(now.Add(-24*time.Hour), now))
	assert.False(t, rules.CanRefresh(now.Add(-8*24*time.Hour), now))
	assert.True(t, rules.Expired(now, now))
	assert.False(t, rules.Expired(now.Add(time.Second), now))
}
