package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the subset of the scenario state these steps need.
type TestContext interface {
	Request(method, path string, body any) error
	Status() int
	Body() []byte
	Field(name string) (any, error)
	ResidentID() string
	Remember(key, value string)
	Recall(key string) string
}

// RegisterSteps registers incident reporting and listing steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &incidentSteps{tc: tc}

	ctx.Step(`^I report a valid incident$`, steps.reportValid)
	ctx.Step(`^I report an incident with a (\d+)-character description$`, steps.reportWithDescription)
	ctx.Step(`^I report a "([^"]*)" incident without an injury description$`, steps.reportSevereWithoutInjury)
	ctx.Step(`^the team list should contain the incident as (read|unread)$`, steps.teamListShouldContain)
}

type incidentSteps struct {
	tc TestContext
}

// Payload builds a create body for the demo resident dated yesterday.
func Payload(residentID, description string) map[string]any {
	return map[string]any{
		"resident_id":    residentID,
		"date":           time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"),
		"time":           "09:30",
		"incident_types": []string{"fall"},
		"incident_level": "no_harm",
		"description":    description,
		"home_name":      "Maple House",
		"unit":           "North Wing",
	}
}

func narrative(n int) string {
	return strings.Repeat("a", n)
}

func (s *incidentSteps) report(body map[string]any) error {
	if err := s.tc.Request(http.MethodPost, "/api/v1/incidents", body); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusCreated {
		return nil
	}
	for _, field := range []string{"id", "team_id"} {
		v, err := s.tc.Field(field)
		if err != nil {
			return err
		}
		s.tc.Remember(field, fmt.Sprint(v))
	}
	return nil
}

func (s *incidentSteps) reportValid(ctx context.Context) error {
	return s.report(Payload(s.tc.ResidentID(), narrative(80)))
}

func (s *incidentSteps) reportWithDescription(ctx context.Context, n int) error {
	return s.report(Payload(s.tc.ResidentID(), narrative(n)))
}

func (s *incidentSteps) reportSevereWithoutInjury(ctx context.Context, level string) error {
	body := Payload(s.tc.ResidentID(), narrative(120))
	body["incident_level"] = level
	return s.report(body)
}

func (s *incidentSteps) teamListShouldContain(ctx context.Context, state string) error {
	if err := s.tc.Request(http.MethodGet, "/api/v1/incidents?scope=team&scope_id="+s.tc.Recall("team_id"), nil); err != nil {
		return err
	}
	if s.tc.Status() != http.StatusOK {
		return fmt.Errorf("list returned %d: %s", s.tc.Status(), s.tc.Body())
	}
	var page struct {
		Items []struct {
			ID     string `json:"id"`
			IsRead bool   `json:"is_read"`
		} `json:"items"`
	}
	if err := json.Unmarshal(s.tc.Body(), &page); err != nil {
		return err
	}
	want := s.tc.Recall("id")
	for _, item := range page.Items {
		if item.ID != want {
			continue
		}
		if item.IsRead != (state == "read") {
			return fmt.Errorf("incident %s is_read=%v, expected %s", want, item.IsRead, state)
		}
		return nil
	}
	return fmt.Errorf("incident %s not in the first page", want)
}
