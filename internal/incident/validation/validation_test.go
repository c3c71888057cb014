package validation

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"safereport/internal/incident/models"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func validPayload() models.Payload {
	return models.Payload{
		ResidentID:    id.ResidentID(uuid.New()),
		Date:          "2025-05-30",
		Time:          "09:15",
		IncidentTypes: []string{"fall"},
		Level:         models.LevelNoHarm,
		Description:   strings.Repeat("a", MinNarrativeLength),
		HomeName:      "Maple House",
		Unit:          "East Wing",
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	de, ok := dErrors.As(err)
	require.True(t, ok, "expected domain error, got %v", err)
	require.Equal(t, dErrors.CodeValidation, de.Code)
	field, _ := de.Detail("field").(string)
	return field
}

type ValidateSuite struct {
	suite.Suite
}

func TestValidateSuite(t *testing.T) {
	suite.Run(t, new(ValidateSuite))
}

func (s *ValidateSuite) TestValidPayload() {
	s.NoError(Validate(validPayload(), now))
}

func (s *ValidateSuite) TestFieldRules() {
	tests := []struct {
		name   string
		mutate func(p *models.Payload)
		field  string
	}{
		{"date wrong format", func(p *models.Payload) { p.Date = "30/05/2025" }, "date"},
		{"date not a calendar day", func(p *models.Payload) { p.Date = "2025-02-30" }, "date"},
		{"time wrong format", func(p *models.Payload) { p.Time = "9:15" }, "time"},
		{"time out of range", func(p *models.Payload) { p.Time = "24:00" }, "time"},
		{"health identifier too short", func(p *models.Payload) { p.HealthIdentifier = "12345" }, "health_identifier"},
		{"health identifier not digits", func(p *models.Payload) { p.HealthIdentifier = "12345abcde" }, "health_identifier"},
		{"unknown level", func(p *models.Payload) { p.Level = "catastrophic" }, "incident_level"},
		{"no types", func(p *models.Payload) { p.IncidentTypes = nil }, "incident_types"},
		{"blank types", func(p *models.Payload) { p.IncidentTypes = []string{"  "} }, "incident_types"},
		{"blank home name", func(p *models.Payload) { p.HomeName = "   " }, "home_name"},
		{"blank unit", func(p *models.Payload) { p.Unit = "" }, "unit"},
		{"short narrative", func(p *models.Payload) { p.Description = strings.Repeat("a", 49) }, "description"},
		{"future date", func(p *models.Payload) { p.Date = "2025-06-02" }, "date"},
		{"later today", func(p *models.Payload) { p.Date = "2025-06-01"; p.Time = "12:01" }, "date"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			p := validPayload()
			tt.mutate(&p)
			s.Equal(tt.field, fieldOf(s.T(), Validate(p, now)))
		})
	}
}

func (s *ValidateSuite) TestFailFastOrder() {
	p := validPayload()
	p.Date = "bad"
	p.Time = "bad"
	p.Description = ""
	s.Equal("date", fieldOf(s.T(), Validate(p, now)))
}

func (s *ValidateSuite) TestSevereLevels() {
	for _, level := range []models.Level{models.LevelDeath, models.LevelPermanentHarm} {
		s.Run(string(level)+" needs 100 chars", func() {
			p := validPayload()
			p.Level = level
			p.Description = strings.Repeat("a", 99)
			p.InjuryDescription = "fractured hip"
			p.TreatmentDescription = "transferred to hospital"
			s.Equal("description", fieldOf(s.T(), Validate(p, now)))
		})
		s.Run(string(level)+" needs injury description", func() {
			p := validPayload()
			p.Level = level
			p.Description = strings.Repeat("a", 100)
			p.TreatmentDescription = "transferred to hospital"
			s.Equal("injury_description", fieldOf(s.T(), Validate(p, now)))
		})
		s.Run(string(level)+" needs treatment description", func() {
			p := validPayload()
			p.Level = level
			p.Description = strings.Repeat("a", 100)
			p.InjuryDescription = "fractured hip"
			s.Equal("treatment_description", fieldOf(s.T(), Validate(p, now)))
		})
		s.Run(string(level)+" passes when complete", func() {
			p := validPayload()
			p.Level = level
			p.Description = strings.Repeat("a", 100)
			p.InjuryDescription = "fractured hip"
			p.TreatmentDescription = "transferred to hospital"
			s.NoError(Validate(p, now))
		})
	}

	for _, level := range []models.Level{models.LevelMinorInjury, models.LevelNoHarm, models.LevelNearMiss} {
		s.Run(string(level)+" only needs 50 chars", func() {
			p := validPayload()
			p.Level = level
			p.Description = strings.Repeat("a", 50)
			s.NoError(Validate(p, now))
		})
	}
}

func (s *ValidateSuite) TestValidateUpdate() {
	current := &models.Incident{Date: "2025-05-30", Time: "09:15"}

	s.Run("empty update is bad request", func() {
		err := ValidateUpdate(models.UpdateFields{}, current, now)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("short narrative rejected", func() {
		short := "too short"
		err := ValidateUpdate(models.UpdateFields{Description: &short}, current, now)
		s.Equal("description", fieldOf(s.T(), err))
	})

	s.Run("time change checked against stored date", func() {
		current := &models.Incident{Date: "2025-06-01", Time: "09:15"}
		later := "13:00"
		err := ValidateUpdate(models.UpdateFields{Time: &later}, current, now)
		s.Equal("date", fieldOf(s.T(), err))
	})

	s.Run("severe level without long narrative is allowed on update", func() {
		level := models.LevelDeath
		s.NoError(ValidateUpdate(models.UpdateFields{Level: &level}, current, now))
	})
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"script removed", `<script>alert("x")</script>Resident fell`, "Resident fell"},
		{"tags stripped text kept", `<b>Bruise</b> on <i>left</i> arm`, "Bruise on left arm"},
		{"attributes dropped", `<a href="javascript:alert(1)" onclick="x()">link</a>`, "link"},
		{"trimmed", "  padded  ", "padded"},
		{"entities visible", "Tom &amp; Jerry", "Tom & Jerry"},
		{"escaped markup cannot come back", "&lt;script&gt;alert(1)&lt;/script&gt;ok", "ok"},
		{"comparison kept", "pain 3 < 5 after meds", "pain 3 < 5 after meds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeText(tt.in))
		})
	}
}

func TestSanitize_PlainTextRoundTrip(t *testing.T) {
	p := validPayload()
	p.Description = "Resident was found seated on the floor beside the bed, alert and oriented."
	p.InjuryDescription = "Small abrasion on right elbow"
	p.TreatmentDescription = "Cleaned and dressed, family informed"
	p.ActionsTaken = "Bed lowered; sensor mat placed"
	p.Witnesses = []string{"Night nurse", "Care assistant"}
	p.ContributingFactors = []string{"Poor lighting", "New medication"}

	assert.Equal(t, p, Sanitize(p))
}

func TestSanitize_DesignatedFields(t *testing.T) {
	p := validPayload()
	p.HomeName = "<em>Maple</em> House"
	p.IncidentTypes = []string{"<b>fall</b>"}
	p.Witnesses = []string{"<img src=x onerror=alert(1)>Jane"}

	got := Sanitize(p)
	assert.Equal(t, "Maple House", got.HomeName)
	assert.Equal(t, []string{"fall"}, got.IncidentTypes)
	assert.Equal(t, []string{"Jane"}, got.Witnesses)
}

func TestSanitizeUpdate(t *testing.T) {
	desc := "<p>Updated narrative</p>"
	u := SanitizeUpdate(models.UpdateFields{Description: &desc})
	require.NotNil(t, u.Description)
	assert.Equal(t, "Updated narrative", *u.Description)
	assert.Nil(t, u.Unit)
	assert.Equal(t, "<p>Updated narrative</p>", desc)
}

func TestSanitize_DropsOnlyBlankListEntries(t *testing.T) {
	p := validPayload()
	p.IncidentTypes = []string{"fall", " Fall ", "<i></i>", "medication_error"}
	p.Witnesses = []string{"", "Ann Lee", "ANN LEE"}

	got := Sanitize(p)
	assert.Equal(t, []string{"fall", "Fall", "medication_error"}, got.IncidentTypes)
	assert.Equal(t, []string{"Ann Lee", "ANN LEE"}, got.Witnesses)
}

// plainList generates lists of trimmed, markup-free entries, with
// deliberate repeats that differ only in case.
func plainList(r *rand.Rand) []string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	n := r.Intn(6)
	out := make([]string, 0, n+1)
	for range n {
		words := make([]string, 1+r.Intn(3))
		for w := range words {
			b := make([]byte, 1+r.Intn(8))
			for i := range b {
				b[i] = letters[r.Intn(len(letters))]
			}
			words[w] = string(b)
		}
		out = append(out, strings.Join(words, " "))
	}
	if n > 0 && r.Intn(2) == 0 {
		out = append(out, strings.ToUpper(out[r.Intn(n)]))
	}
	return out
}

func TestSanitize_PlainListsAreUnchanged(t *testing.T) {
	cfg := &quick.Config{
		MaxCount: 500,
		Values: func(args []reflect.Value, r *rand.Rand) {
			for i := range args {
				args[i] = reflect.ValueOf(plainList(r))
			}
		},
	}
	property := func(types, witnesses, factors []string) bool {
		p := validPayload()
		p.IncidentTypes, p.Witnesses, p.ContributingFactors = types, witnesses, factors
		return reflect.DeepEqual(p, Sanitize(p))
	}
	require.NoError(t, quick.Check(property, cfg))
}
