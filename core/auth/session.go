package auth

import "time"

// SessionRules are the lifetimes of the session tokens.
type SessionRules struct {
	Timeout          time.Duration // token lifetime
	RefreshWindow    time.Duration // refresh allowed until the original issue time plus this window
	RefreshThreshold time.Duration // clients should refresh this long before expiry
}

// ShouldRefresh reports whether a token expiring at exp should be refreshed now.
func (r SessionRules) ShouldRefresh(exp, now time.Time) bool {
	return exp.Sub(now) <= r.RefreshThreshold
}

// CanRefresh reports whether a session originally issued at origIssuedAt may still be refreshed.
func (r SessionRules) CanRefresh(origIssuedAt, now time.Time) bool {
	return !now.After(origIssuedAt.Add(r.RefreshWindow))
}

// Expired reports whether a token expiring at exp is expired.
func (r SessionRules) Expired(exp, now time.Time) bool {
	return !now.Before(exp)
}
