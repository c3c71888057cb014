package models

import (
	"strings"
	"time"
)

// Action names a throttled operation.
type Action string

const (
	ActionCreateIncident Action = "create_incident"
)

// Key is the counter key for one user and action. ':' inside a segment is
// replaced so one caller's id cannot address another caller's counter.
func Key(action Action, userID string) string {
	seg := strings.NewReplacer(":", "_")
	return "rl:" + seg.Replace(string(action)) + ":" + seg.Replace(userID)
}

// Policy is the fixed-window budget for one action.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicies: 10 incident creations per user per hour.
func DefaultPolicies() map[Action]Policy {
	return map[Action]Policy{
		ActionCreateIncident: {Limit: 10, Window: 60 * time.Minute},
	}
}

// Result represents the outcome of a rate limit check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// MinutesUntilReset rounds the remaining window up to whole minutes, never
// below one.
func (r *Result) MinutesUntilReset(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	minutes := int(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	return minutes
}
