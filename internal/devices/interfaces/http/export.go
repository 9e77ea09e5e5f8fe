package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	devices "devices-api/internal/devices/domain"
	"devices-api/internal/observability/metrics"
)

const exportsPath = "/api/v1/exports/devices."

const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"
	formatPDF  = "pdf"
)

var exportHeader = []string{"id", "name", "brand", "state", "creation_time"}

// ExportHandler serves GET /api/v1/exports/devices.{csv,xlsx,pdf}.
type ExportHandler struct {
	service DeviceService
	logger  zerolog.Logger
	now     func() time.Time
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(service DeviceService, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{service: service, logger: logger, now: time.Now}
}

// Register mounts the export routes on mux.
func (h *ExportHandler) Register(mux *http.ServeMux) {
	for _, format := range []string{formatCSV, formatXLSX, formatPDF} {
		mux.Handle(exportsPath+format, h)
	}
}

// ServeHTTP renders the filtered inventory in the requested format.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	format := strings.TrimPrefix(r.URL.Path, exportsPath)
	if format != formatCSV && format != formatXLSX && format != formatPDF {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var state devices.State
	if value := r.URL.Query().Get("state"); value != "" {
		parsed, err := devices.ParseState(value)
		if err != nil {
			metrics.IncExport(format, metrics.ResultInvalid)
			http.Error(w, "state must be one of AVAILABLE, IN_USE, INACTIVE", http.StatusBadRequest)
			return
		}
		state = parsed
	}

	list, err := h.selectDevices(r.Context(), r.URL.Query().Get("brand"), state)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.logger.Error().Err(err).Str("format", format).Msg("device export query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case formatCSV:
		body, err = BuildDevicesCSV(list)
		contentType = "text/csv; charset=utf-8"
	case formatXLSX:
		body, err = BuildDevicesXLSX(list)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		body, err = BuildDevicesPDF(list, h.now().UTC())
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.logger.Error().Err(err).Str("format", format).Msg("device export render failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.IncExport(format, metrics.ResultSuccess)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="devices.%s"`, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// selectDevices applies the optional brand and state filters.
func (h *ExportHandler) selectDevices(ctx context.Context, brand string, state devices.State) ([]devices.Device, error) {
	switch {
	case brand != "" && state != "":
		list, err := h.service.ListByBrand(ctx, brand)
		if err != nil {
			return nil, err
		}
		filtered := list[:0]
		for _, device := range list {
			if device.State == state {
				filtered = append(filtered, device)
			}
		}
		return filtered, nil
	case brand != "":
		return h.service.ListByBrand(ctx, brand)
	case state != "":
		return h.service.ListByState(ctx, state)
	default:
		return h.service.ListAll(ctx)
	}
}

// BuildDevicesCSV renders devices as CSV with a header row.
func BuildDevicesCSV(list []devices.Device) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, device := range list {
		if err := writer.Write(exportRow(device)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDevicesXLSX renders devices into a single "devices" sheet.
func BuildDevicesXLSX(list []devices.Device) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "devices"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, title)
	}
	for i, device := range list {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), device.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), device.Name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), device.Brand.Name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), string(device.State))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), device.CreationTime.UTC().Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDevicesPDF renders a device inventory table.
func BuildDevicesPDF(list []devices.Device, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Device Inventory")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Devices: %d", len(list)))
	pdf.Ln(8)

	widths := []float64{20, 80, 60, 35, 60}
	pdf.SetFont("Arial", "B", 10)
	for i, title := range exportHeader {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, device := range list {
		for i, value := range exportRow(device) {
			align := "L"
			if i == 0 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportRow(device devices.Device) []string {
	return []string{
		strconv.FormatInt(device.ID, 10),
		device.Name,
		device.Brand.Name,
		string(device.State),
		device.CreationTime.UTC().Format(time.RFC3339),
	}
}
