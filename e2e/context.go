// Package e2e drives a running safereport server through Gherkin scenarios.
//
// The suite needs E2E_BASE_URL plus one bearer token per role
// (E2E_OWNER_TOKEN, E2E_ADMIN_TOKEN, E2E_MEMBER_TOKEN, issued with
// `safereportctl issue-token`) and E2E_RESIDENT_ID for the demo resident.
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Config is read from the environment once per run.
type Config struct {
	BaseURL    string
	Tokens     map[string]string
	ResidentID string
}

// ConfigFromEnv returns nil when E2E_BASE_URL is unset.
func ConfigFromEnv() *Config {
	base := strings.TrimRight(os.Getenv("E2E_BASE_URL"), "/")
	if base == "" {
		return nil
	}
	return &Config{
		BaseURL: base,
		Tokens: map[string]string{
			"owner":  os.Getenv("E2E_OWNER_TOKEN"),
			"admin":  os.Getenv("E2E_ADMIN_TOKEN"),
			"member": os.Getenv("E2E_MEMBER_TOKEN"),
		},
		ResidentID: os.Getenv("E2E_RESIDENT_ID"),
	}
}

// TestContext is the per-scenario state shared by step packages.
type TestContext struct {
	cfg    *Config
	client *http.Client

	role   string
	status int
	header http.Header
	body   []byte
	vars   map[string]string
}

func NewTestContext(cfg *Config) *TestContext {
	return &TestContext{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		vars:   make(map[string]string),
	}
}

// SetRole selects whose token is sent. An empty role sends none.
func (tc *TestContext) SetRole(role string) error {
	if _, ok := tc.cfg.Tokens[role]; !ok && role != "" {
		return fmt.Errorf("unknown role %q", role)
	}
	tc.role = role
	return nil
}

func (tc *TestContext) ResidentID() string { return tc.cfg.ResidentID }

func (tc *TestContext) Remember(key, value string) { tc.vars[key] = value }

func (tc *TestContext) Recall(key string) string { return tc.vars[key] }

// Request sends body as JSON under the current role. {name} placeholders in
// path and body are filled from remembered values.
func (tc *TestContext) Request(method, path string, body any) error {
	path = tc.expand(path)
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(tc.expand(string(raw)))
	}
	req, err := http.NewRequest(method, tc.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tc.cfg.Tokens[tc.role]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.body, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.status = resp.StatusCode
	tc.header = resp.Header
	return nil
}

func (tc *TestContext) expand(s string) string {
	for k, v := range tc.vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func (tc *TestContext) Status() int { return tc.status }

func (tc *TestContext) Header(name string) string { return tc.header.Get(name) }

func (tc *TestContext) Body() []byte { return tc.body }

// Field returns a top-level field of the last JSON response.
func (tc *TestContext) Field(name string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(tc.body, &m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", name, tc.body)
	}
	return v, nil
}
