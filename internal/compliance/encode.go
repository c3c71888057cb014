package compliance

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var incidentHeader = []string{
	"reference", "date", "time", "incident_types", "incident_level",
	"description", "injury_description", "treatment_description", "actions_taken",
	"witnesses", "contributing_factors", "home_name", "unit", "health_identifier",
	"state", "archived_at", "scheduled_deletion_at",
	"created_by", "created_at", "updated_by", "updated_at",
}

var auditHeader = []string{"incident_reference", "actor", "action", "timestamp", "details"}

func incidentRow(r IncidentRecord) []string {
	return []string{
		r.Reference, r.Date, r.Time, strings.Join(r.IncidentTypes, "; "), r.Level,
		r.Description, r.InjuryDescription, r.TreatmentDescription, r.ActionsTaken,
		strings.Join(r.Witnesses, "; "), strings.Join(r.ContributingFactors, "; "),
		r.HomeName, r.Unit, r.HealthIdentifier,
		r.State, formatTime(r.ArchivedAt), formatTime(r.ScheduledDeletionAt),
		r.CreatedBy, r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedBy, formatTime(r.UpdatedAt),
	}
}

func auditRow(r AuditRecord) ([]string, error) {
	details := ""
	if len(r.Details) > 0 {
		raw, err := json.Marshal(r.Details)
		if err != nil {
			return nil, fmt.Errorf("encode audit details: %w", err)
		}
		details = string(raw)
	}
	return []string{r.IncidentReference, r.Actor, r.Action, r.Timestamp.UTC().Format(time.RFC3339), details}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func encode(p *Package, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(p)
	case FormatXLSX:
		return encodeXLSX(p)
	default:
		return json.MarshalIndent(p, "", "  ")
	}
}

// encodeCSV writes one flat table. The record_type column tells incident
// rows from audit rows; columns a row type does not use are empty.
func encodeCSV(p *Package) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"record_type"}, incidentHeader...)
	header = append(header, "actor", "action", "timestamp", "details")
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	blankAudit := make([]string, 4)
	for _, r := range p.Incidents {
		row := append([]string{"incident"}, incidentRow(r)...)
		if err := w.Write(append(row, blankAudit...)); err != nil {
			return nil, fmt.Errorf("write incident row: %w", err)
		}
	}
	blankIncident := make([]string, len(incidentHeader)-1)
	for _, r := range p.AuditEntries {
		a, err := auditRow(r)
		if err != nil {
			return nil, err
		}
		row := append([]string{"audit", a[0]}, blankIncident...)
		if err := w.Write(append(row, a[1:]...)); err != nil {
			return nil, fmt.Errorf("write audit row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

const (
	incidentSheet = "Incidents"
	auditSheet    = "Audit"
)

func encodeXLSX(p *Package) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", incidentSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(auditSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	rows := make([][]string, 0, len(p.Incidents))
	for _, r := range p.Incidents {
		rows = append(rows, incidentRow(r))
	}
	if err := writeSheet(f, incidentSheet, incidentHeader, rows, headerStyle); err != nil {
		return nil, err
	}

	rows = rows[:0]
	for _, r := range p.AuditEntries {
		a, err := auditRow(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, a)
	}
	if err := writeSheet(f, auditSheet, auditHeader, rows, headerStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]string, headerStyle int) error {
	for r, values := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return fmt.Errorf("convert coordinates: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, r+1, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
