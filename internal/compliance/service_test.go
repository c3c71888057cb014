package compliance_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"

	"safereport/internal/audit"
	auditmemory "safereport/internal/audit/store/memory"
	"safereport/internal/compliance"
	"safereport/internal/incident/models"
	"safereport/internal/incident/store"
	mservice "safereport/internal/membership/service"
	mstore "safereport/internal/membership/store"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/testutil"
)

type ExportSuite struct {
	suite.Suite
	ctx       context.Context
	clock     time.Time
	tenant    *testutil.Tenant
	outsider  *testutil.Tenant
	incidents *store.InMemoryIncidentStore
	auditLog  *auditmemory.InMemoryStore
	logger    *audit.Logger
	access    *mservice.Service
	exporter  *compliance.Exporter
}

func TestExportSuite(t *testing.T) {
	suite.Run(t, new(ExportSuite))
}

func (s *ExportSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return s.clock }

	memberships := mstore.NewInMemoryMembershipStore()
	residents := mstore.NewInMemoryResidentStore()
	s.tenant = testutil.NewTenant(s.T(), memberships, residents)
	s.outsider = testutil.NewTenant(s.T(), memberships, residents)

	access, err := mservice.New(memberships, residents)
	s.Require().NoError(err)
	s.access = access
	s.auditLog = auditmemory.NewInMemoryStore()
	s.logger, err = audit.NewLogger(s.auditLog, audit.WithClock(now))
	s.Require().NoError(err)
	s.incidents = store.NewInMemoryIncidentStore()

	s.exporter, err = compliance.New(s.incidents, s.auditLog, access, s.logger, []byte("test-key"),
		compliance.WithClock(now))
	s.Require().NoError(err)
}

// seed stores n incidents created by the tenant's member, each with a
// create audit entry.
func (s *ExportSuite) seed(n int) []*models.Incident {
	out := make([]*models.Incident, 0, n)
	for i := range n {
		inc := s.tenant.ActiveIncident(s.clock.AddDate(0, 0, -i-1).Format("2006-01-02"), s.clock)
		s.Require().NoError(s.incidents.Create(s.ctx, inc))
		s.Require().NoError(s.logger.LogDataAccess(s.ctx, &inc.ID, inc.CreatedBy, audit.CreateMetadata{
			ResidentID: inc.ResidentID.String(),
			Level:      string(inc.Level),
		}))
		out = append(out, inc)
	}
	return out
}

func (s *ExportSuite) TestSelfExportStripsInternalIdentifiers() {
	s.seed(2)

	res, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Member, compliance.UserSubject(s.tenant.Member), compliance.FormatJSON)
	s.Require().NoError(err)
	s.Equal("subject-export-user-2025-06-01.json", res.Filename)
	s.Equal("application/json", res.ContentType)
	s.Equal(4, res.RecordCount)

	body := string(res.Data)
	s.NotContains(body, s.tenant.TeamID.String())
	s.NotContains(body, s.tenant.OrganizationID.String())
	s.NotContains(body, s.tenant.Member.String())
	s.NotContains(body, s.tenant.Resident.ID.String())

	var pkg compliance.Package
	s.Require().NoError(json.Unmarshal(res.Data, &pkg))
	s.Len(pkg.Incidents, 2)
	s.Len(pkg.AuditEntries, 2)
	s.Equal(pkg.Subject.Reference, pkg.Incidents[0].CreatedBy)
	s.Equal(pkg.Subject.Reference, pkg.AuditEntries[0].Actor)
	s.Equal(string(models.LevelNoHarm), pkg.AuditEntries[0].Details["incident_level"])

	s.Equal(1, s.auditLog.CountByAction(audit.ActionExport))
	last := s.auditLog.All()[len(s.auditLog.All())-1]
	s.Equal(audit.ExportMetadata{SubjectKind: "user", Format: "json", RecordCount: 4}, last.Metadata)
	s.Nil(last.IncidentID)
}

// logViews writes n view_list entries for the member, all at the same instant.
func (s *ExportSuite) logViews(n int) {
	for range n {
		s.Require().NoError(s.logger.LogDataAccess(s.ctx, nil, s.tenant.Member, audit.ListMetadata{
			Scope: models.TeamScope(s.tenant.TeamID).String(),
		}))
	}
}

func (s *ExportSuite) TestSelfExportReadsEveryAuditPage() {
	s.logViews(25)
	exporter, err := compliance.New(s.incidents, s.auditLog, s.access, s.logger, []byte("test-key"),
		compliance.WithClock(func() time.Time { return s.clock }),
		compliance.WithAuditPageSize(4))
	s.Require().NoError(err)

	res, err := exporter.ExportSubjectData(s.ctx, s.tenant.Member, compliance.UserSubject(s.tenant.Member), compliance.FormatJSON)
	s.Require().NoError(err)
	s.Equal(25, res.RecordCount)

	var pkg compliance.Package
	s.Require().NoError(json.Unmarshal(res.Data, &pkg))
	s.Len(pkg.AuditEntries, 25)
}

func (s *ExportSuite) TestSelfExportPastTenThousandEntries() {
	const n = 10_001
	s.logViews(n)

	res, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Member, compliance.UserSubject(s.tenant.Member), compliance.FormatJSON)
	s.Require().NoError(err)
	s.Equal(n, res.RecordCount)
	last := s.auditLog.All()[len(s.auditLog.All())-1]
	s.Equal(audit.ExportMetadata{SubjectKind: "user", Format: "json", RecordCount: n}, last.Metadata)
}

func (s *ExportSuite) TestExportingAnotherUserIsOwnerOnly() {
	s.seed(1)

	_, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Admin, compliance.UserSubject(s.tenant.Member), compliance.FormatJSON)
	s.Equal(dErrors.ReasonPermissionDenied, dErrors.Reason(err))

	_, err = s.exporter.ExportSubjectData(s.ctx, s.outsider.Owner, compliance.UserSubject(s.tenant.Member), compliance.FormatJSON)
	s.Equal(dErrors.ReasonAccessDenied, dErrors.Reason(err))

	res, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Owner, compliance.UserSubject(s.tenant.Member), compliance.FormatJSON)
	s.Require().NoError(err)
	s.Equal(2, res.RecordCount)
	s.Equal(1, s.auditLog.CountByAction(audit.ActionExport))
}

func (s *ExportSuite) TestResidentExportAsCSV() {
	seeded := s.seed(3)

	_, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Member, compliance.ResidentSubject(s.tenant.Resident.ID), compliance.FormatCSV)
	s.Equal(dErrors.ReasonPermissionDenied, dErrors.Reason(err))

	res, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Owner, compliance.ResidentSubject(s.tenant.Resident.ID), compliance.FormatCSV)
	s.Require().NoError(err)
	s.Equal("subject-export-resident-2025-06-01.csv", res.Filename)

	records, err := csv.NewReader(bytes.NewReader(res.Data)).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(records, 1+3+3)
	s.Equal("record_type", records[0][0])
	width := len(records[0])
	kinds := map[string]int{}
	for _, row := range records[1:] {
		s.Len(row, width)
		kinds[row[0]]++
	}
	s.Equal(map[string]int{"incident": 3, "audit": 3}, kinds)
	s.Equal(seeded[0].ID.String(), records[1][1])
}

func (s *ExportSuite) TestResidentWithoutIncidentsExportsNoAuditEntries() {
	s.seed(2)
	other := s.tenant.AddResident(s.T(), "Bo Carter")

	res, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Owner, compliance.ResidentSubject(other.ID), compliance.FormatJSON)
	s.Require().NoError(err)
	s.Zero(res.RecordCount)

	var pkg compliance.Package
	s.Require().NoError(json.Unmarshal(res.Data, &pkg))
	s.Empty(pkg.AuditEntries)
	s.Equal("Bo Carter", pkg.Subject.Name)
}

func (s *ExportSuite) TestXLSXHasOneSheetPerSection() {
	s.seed(2)

	res, err := s.exporter.ExportSubjectData(s.ctx, s.tenant.Member, compliance.UserSubject(s.tenant.Member), compliance.FormatXLSX)
	s.Require().NoError(err)
	s.Equal("subject-export-user-2025-06-01.xlsx", res.Filename)

	f, err := excelize.OpenReader(bytes.NewReader(res.Data))
	s.Require().NoError(err)
	defer f.Close()

	s.Equal([]string{"Incidents", "Audit"}, f.GetSheetList())
	incidentRows, err := f.GetRows("Incidents")
	s.Require().NoError(err)
	s.Len(incidentRows, 3)
	s.Equal("reference", incidentRows[0][0])
	auditRows, err := f.GetRows("Audit")
	s.Require().NoError(err)
	s.Len(auditRows, 3)
	s.Equal("create", auditRows[1][2])
}

func TestPseudonymsAreStablePerKey(t *testing.T) {
	subject := compliance.UserSubject(id.UserID(uuid.New()))
	a := compliance.NewPseudonymizer([]byte("k1"))
	b := compliance.NewPseudonymizer([]byte("k2"))

	assert.Equal(t, a.User(subject.ID), a.User(subject.ID))
	assert.NotEqual(t, a.User(subject.ID), b.User(subject.ID))
	assert.Regexp(t, `^user-[0-9a-f]{16}$`, a.User(subject.ID))
}

func TestParseFormatAndSubject(t *testing.T) {
	f, err := compliance.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, compliance.FormatJSON, f)

	f, err = compliance.ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, compliance.FormatXLSX, f)

	_, err = compliance.ParseFormat("pdf")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = compliance.ParseSubject("team", id.UserID(uuid.New()).String())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = compliance.ParseSubject("user", "not-a-uuid")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	subject, err := compliance.ParseSubject(" Resident ", "2c4a6f5e-1b1d-4c43-9d5e-4a1f0e9b7c31")
	require.NoError(t, err)
	assert.Equal(t, compliance.SubjectResident, subject.Kind)
}
