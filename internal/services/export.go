package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"foodbank-checkin-backend/internal/household"
	"foodbank-checkin-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

// ExportHeader is the fixed column order of registration exports. site is
// the location of the registration.
var ExportHeader = []string{
	"id", "firstName", "lastName", "dateOfBirth", "phone", "address", "apartment",
	"city", "state", "zipCode", "site", "race", "ethnicity", "sex", "maritalStatus",
	"nameOfProxy", "children", "adults", "seniors", "language", "countryOfBirth",
	"incomeYear", "incomeMonth", "incomeWeek", "snap", "tanf", "ssi", "nsls",
	"medicaid", "crisisReason", "agreedToCert", "archived", "tefapDate",
	"tefapEligible", "household", "submittedAt", "updatedAt", "lastCheckIn",
	"isEligible", "isIneligible", "eligibleBeginMonth", "eligibleBeginYear",
	"eligibleEndMonth", "eligibleEndYear", "ineligibleBeginMonth",
	"ineligibleBeginYear", "ineligibleEndMonth", "ineligibleEndYear",
	"staffDate", "updatedBy", "lastUpdated",
}

const exportSheet = "Registrations"

// ExportService writes registration spreadsheets
type ExportService struct {
	registrations RegistrationStore
}

// NewExportService creates a new export service
func NewExportService(registrations RegistrationStore) *ExportService {
	return &ExportService{registrations: registrations}
}

// ExportRow flattens a registration in ExportHeader order. Signature images
// are never exported.
func ExportRow(r *models.Registration) []string {
	f := r.FormData
	a := models.AdminData{}
	if r.AdminData != nil {
		a = *r.AdminData
	}
	return []string{
		r.ExternalID(), f.FirstName, f.LastName, f.DateOfBirth, f.Phone, f.Address, f.Apartment,
		f.City, f.State, f.ZipCode, f.Location, f.Race, f.Ethnicity, f.Sex, f.MaritalStatus,
		f.NameOfProxy, f.Children, f.Adults, f.Seniors, f.Language, f.CountryOfBirth,
		f.IncomeYear, f.IncomeMonth, f.IncomeWeek, boolCell(f.SNAP), boolCell(f.TANF), boolCell(f.SSI), boolCell(f.NSLS),
		boolCell(f.Medicaid), f.CrisisReason, boolCell(f.AgreedToCert), boolCell(f.Archived), f.TefapDate,
		boolCell(f.TefapEligible), household.Display(household.Parse(f.Household)),
		formatTime(&r.SubmittedAt), formatTime(r.UpdatedAt), formatTime(r.LastCheckIn),
		boolCell(a.IsEligible), boolCell(a.IsIneligible), a.EligibleBeginMonth, a.EligibleBeginYear,
		a.EligibleEndMonth, a.EligibleEndYear, a.IneligibleBeginMonth,
		a.IneligibleBeginYear, a.IneligibleEndMonth, a.IneligibleEndYear,
		a.StaffDate, a.UpdatedBy, formatTime(a.LastUpdated),
	}
}

func boolCell(b bool) string {
	return strconv.FormatBool(b)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteCSV writes every registration as CSV
func (s *ExportService) WriteCSV(ctx context.Context, w io.Writer) error {
	regs, err := s.registrations.List(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range regs {
		if err := cw.Write(ExportRow(r)); err != nil {
			return fmt.Errorf("failed to write registration %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes every registration as an Excel workbook
func (s *ExportService) WriteXLSX(ctx context.Context, w io.Writer) error {
	regs, err := s.registrations.List(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := setRow(f, 1, ExportHeader); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(ExportHeader), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, r := range regs {
		if err := setRow(f, i+2, ExportRow(r)); err != nil {
			return err
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(exportSheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
