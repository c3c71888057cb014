package common

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the subset of the scenario state these steps need.
type TestContext interface {
	SetRole(role string) error
	Request(method, path string, body any) error
	Status() int
	Header(name string) string
	Field(name string) (any, error)
	Remember(key, value string)
	Recall(key string) string
}

// RegisterSteps registers role selection, raw requests, and response assertions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am the team (owner|admin|member)$`, steps.asRole)
	ctx.Step(`^I send no token$`, steps.anonymous)
	ctx.Step(`^I (GET|POST|DELETE) "([^"]*)"$`, steps.send)
	ctx.Step(`^I (POST|PATCH|DELETE) "([^"]*)" with body:$`, steps.sendWithBody)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.fieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should equal the remembered "([^"]*)"$`, steps.fieldShouldEqualRemembered)
	ctx.Step(`^the response header "([^"]*)" should equal "([^"]*)"$`, steps.headerShouldEqual)
	ctx.Step(`^I remember the response field "([^"]*)" as "([^"]*)"$`, steps.rememberField)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) asRole(ctx context.Context, role string) error {
	return s.tc.SetRole(role)
}

func (s *commonSteps) anonymous(ctx context.Context) error {
	return s.tc.SetRole("")
}

func (s *commonSteps) send(ctx context.Context, method, path string) error {
	return s.tc.Request(method, path, nil)
}

func (s *commonSteps) sendWithBody(ctx context.Context, method, path string, doc *godog.DocString) error {
	var body any
	if err := json.Unmarshal([]byte(doc.Content), &body); err != nil {
		return fmt.Errorf("body is not JSON: %w", err)
	}
	return s.tc.Request(method, path, body)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, want int) error {
	if got := s.tc.Status(); got != want {
		return fmt.Errorf("expected status %d, got %d", want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldEqual(ctx context.Context, field, want string) error {
	v, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s=%q, got %q", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldEqualRemembered(ctx context.Context, field, key string) error {
	return s.fieldShouldEqual(ctx, field, s.tc.Recall(key))
}

func (s *commonSteps) headerShouldEqual(ctx context.Context, name, want string) error {
	if got := s.tc.Header(name); got != want {
		return fmt.Errorf("expected header %s=%q, got %q", name, want, got)
	}
	return nil
}

func (s *commonSteps) rememberField(ctx context.Context, field, key string) error {
	v, err := s.tc.Field(field)
	if err != nil {
		return err
	}
	s.tc.Remember(key, fmt.Sprint(v))
	return nil
}
