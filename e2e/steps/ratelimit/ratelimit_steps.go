package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the subset of the scenario state these steps need.
type TestContext interface {
	Request(method, path string, body any) error
	Status() int
	Header(name string) string
	Field(name string) (any, error)
	ResidentID() string
}

// RegisterSteps registers incident creation rate limit steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I report incidents until I am rate limited$`, steps.reportUntilLimited)
	ctx.Step(`^at most (\d+) reports should have been accepted$`, steps.acceptedAtMost)
	ctx.Step(`^the response should carry a Retry-After header$`, steps.retryAfterPresent)
}

type ratelimitSteps struct {
	tc       TestContext
	accepted int
}

const maxAttempts = 50

func (s *ratelimitSteps) reportUntilLimited(ctx context.Context) error {
	body := map[string]any{
		"resident_id":    s.tc.ResidentID(),
		"date":           "2026-01-15",
		"time":           "08:00",
		"incident_types": []string{"near_miss"},
		"incident_level": "near_miss",
		"description":    strings.Repeat("b", 60),
		"home_name":      "Maple House",
		"unit":           "South Wing",
	}
	for range maxAttempts {
		if err := s.tc.Request(http.MethodPost, "/api/v1/incidents", body); err != nil {
			return err
		}
		switch s.tc.Status() {
		case http.StatusCreated:
			s.accepted++
		case http.StatusTooManyRequests:
			return nil
		default:
			return fmt.Errorf("unexpected status %d", s.tc.Status())
		}
	}
	return fmt.Errorf("not rate limited after %d reports", maxAttempts)
}

func (s *ratelimitSteps) acceptedAtMost(ctx context.Context, n int) error {
	if s.accepted > n {
		return fmt.Errorf("accepted %d reports, limit is %d", s.accepted, n)
	}
	return nil
}

func (s *ratelimitSteps) retryAfterPresent(ctx context.Context) error {
	raw := s.tc.Header("Retry-After")
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fmt.Errorf("Retry-After %q is not a positive number of seconds", raw)
	}
	return nil
}
