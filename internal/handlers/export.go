package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// ExportHandler streams the registration database as a spreadsheet
type ExportHandler struct {
	exports ExportService
	now     func() time.Time
}

// NewExportHandler creates a new export handler
func NewExportHandler(exports ExportService) *ExportHandler {
	return &ExportHandler{exports: exports, now: time.Now}
}

// CSV handles GET /api/v1/admin/export.csv
func (h *ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "csv", "text/csv; charset=utf-8", h.exports.WriteCSV)
}

// XLSX handles GET /api/v1/admin/export.xlsx
func (h *ExportHandler) XLSX(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", h.exports.WriteXLSX)
}

// write renders the whole file before sending so a failure can still
// produce an error status
func (h *ExportHandler) write(
	w http.ResponseWriter,
	r *http.Request,
	ext, contentType string,
	render func(ctx context.Context, w io.Writer) error,
) {
	var buf bytes.Buffer
	if err := render(r.Context(), &buf); err != nil {
		log.Error().Err(err).Str("format", ext).Msg("Failed to export registrations")
		respondError(w, "Failed to export registrations", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("registrations-%s.%s", h.now().UTC().Format("2006-01-02"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Warn().Err(err).Str("format", ext).Msg("Export download interrupted")
	}
}
