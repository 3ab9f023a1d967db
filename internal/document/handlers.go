package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/invoice-pages/internal/invoice"
)

// maxFormSize bounds multipart uploads; multi-page scans from phones get large
const maxFormSize = int64(100 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// detectContentType falls back to the file extension when the part has no Content-Type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleListDocuments returns a list of all documents
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.ListDocuments()
	if err != nil {
		slog.Error("Error listing documents", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if docs == nil {
		docs = []*Document{}
	}

	writeJSON(w, http.StatusOK, docs)
}

// handleUploadDocument accepts one or more "file" parts making up a single invoice
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = fmt.Sprintf("Upload is too large. Maximum size is %dMB.", maxFormSize>>20)
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		jsonError(w, "No file was selected. Please choose at least one file to upload.", http.StatusBadRequest)
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			slog.Error("Error opening uploaded file", "error", err, "filename", header.Filename)
			jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}

		uploads = append(uploads, Upload{
			Filename:    header.Filename,
			ContentType: detectContentType(header.Header.Get("Content-Type"), header.Filename),
			Data:        data,
		})
	}

	doc, err := s.service.ProcessDocument(r.Context(), uploads)
	if err != nil {
		slog.Error("Error processing document", "files", len(uploads), "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// handleGetDocument returns a single document
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.GetDocument(r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument deletes a document
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDocument(r.PathValue("id")); err != nil {
		writeLookupError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetPage returns the stored image of one page
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	pageNumber, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || pageNumber < 1 {
		corsError(w, "Invalid page number", http.StatusBadRequest)
		return
	}

	data, err := s.service.GetPageImage(r.PathValue("id"), pageNumber)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// handleUpdateInvoice stores a corrected invoice and returns the re-validated document
func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var data invoice.InvoiceData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := s.service.UpdateInvoice(r.PathValue("id"), data)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleExportDocument returns the aggregated invoice as an XLSX workbook
func (s *Server) handleExportDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.ExportDocument(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice-%s.xlsx"`, id))
	w.Write(data)
}

// handleAggregate merges page results extracted by the caller
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var pages []invoice.PageResult
	if err := json.NewDecoder(r.Body).Decode(&pages); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	aggregated, validation, err := s.service.Aggregate(pages)
	if err != nil {
		if errors.Is(err, invoice.ErrNoPages) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error aggregating pages", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aggregated": aggregated,
		"validation": validation,
	})
}

// writeLookupError maps service errors for a single document to a status code
func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		corsError(w, "Document not found", http.StatusNotFound)
	case errors.Is(err, ErrPageNotFound):
		corsError(w, "Page not found", http.StatusNotFound)
	default:
		slog.Error("Error handling document request", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
	}
}
