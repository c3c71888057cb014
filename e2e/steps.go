package e2e

import (
	"github.com/cucumber/godog"

	"safereport/e2e/steps/common"
	"safereport/e2e/steps/incident"
	"safereport/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	incident.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
