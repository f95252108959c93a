package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// uploadResponse is the envelope returned for a processed receipt
type uploadResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Data     scanning.Receipt  `json:"data"`
	Metadata scanning.Metadata `json:"metadata"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeDetail writes a short human-readable error response. Internal detail
// is logged by the caller, never returned.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// handleHealth reports service health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "receipt_processing",
	})
}

// contentTypeFor falls back to the file extension when the part carries no
// Content-Type header
func contentTypeFor(headerType, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(headerType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReceipt handles receipt upload and processing
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		if err.Error() == "http: request body too large" {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeDetail(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if s.maxUpload > 0 && header.Size > s.maxUpload {
		writeDetail(w, http.StatusRequestEntityTooLarge, "File is too large")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeDetail(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)

	record, err := s.service.ProcessReceipt(r.Context(), header.Filename, data, contentType)
	if err != nil {
		s.writeProcessingError(w, header.Filename, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Message: "Receipt processed successfully",
		Data:    record.Data,
		Metadata: scanning.Metadata{
			OriginalFilename: record.OriginalFilename,
			ProcessedAt:      record.ProcessedAt,
		},
	})
}

// writeProcessingError maps pipeline failures onto response codes. Validation
// failures are the caller's fault and say why; everything upstream collapses
// into a generic 500 so credential or transport detail never leaks.
func (s *Server) writeProcessingError(w http.ResponseWriter, filename string, err error) {
	var stageErr *scanning.StageError
	stage := "internal"
	if errors.As(err, &stageErr) {
		stage = string(stageErr.Stage)
	}
	slog.Error("Error processing receipt", "filename", filename, "stage", stage, "error", err)

	if errors.Is(err, scanning.ErrFileTooLarge) {
		writeDetail(w, http.StatusRequestEntityTooLarge, "File is too large")
		return
	}

	var validationErr *scanning.ValidationError
	if errors.As(err, &validationErr) {
		writeDetail(w, http.StatusBadRequest, validationErr.Reason)
		return
	}

	if errors.Is(err, scanning.ErrRateLimited) {
		writeDetail(w, http.StatusInternalServerError, "Service is busy. Please try again later.")
		return
	}

	writeDetail(w, http.StatusInternalServerError, "Failed to process receipt. Please try again.")
}

// handleListRecords returns all processed receipts
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		slog.Error("Error listing records", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleGetRecord returns a single processed receipt
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.service.GetRecord(id)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Receipt not found")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleGetRecordFile returns the original uploaded file for a receipt
func (s *Server) handleGetRecordFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.service.GetRecordFile(id)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteRecord deletes a processed receipt
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteRecord(id); err != nil {
		writeDetail(w, http.StatusNotFound, "Receipt not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
