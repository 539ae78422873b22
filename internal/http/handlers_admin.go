package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"several/internal/amqp"
	"several/internal/backup"
	"several/internal/log"
)

const ocrTimeout = 45 * time.Second

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.svc.State().Settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, defaultMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	settings, err := s.svc.UpdateSettings(r.Context(), req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, settings)
}

// handleExport streams the current state as a backup file download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	b := s.svc.Export()

	var buf bytes.Buffer
	if err := backup.Export(&buf, b); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+backup.FileName(b.Meta.CreatedAt)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())

	log.FromContext(r.Context()).InfoContext(r.Context(), "Backup exported", log.NewFields().
		WithOperation(log.OpExport).
		WithCounts(len(b.Data.Budgets), len(b.Data.Expenses)).ToSlice()...)
}

type importResponse struct {
	Version  string   `json:"version"`
	Legacy   bool     `json:"legacy"`
	Migrated int      `json:"migrated"`
	Warnings []string `json:"warnings"`
	Budgets  int      `json:"budgets"`
	Expenses int      `json:"expenses"`
}

// handleImport replaces all data with an uploaded backup, sent either as
// the raw JSON body or as the multipart field "file".
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := readUpload(w, r, s.maxUpload, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Import(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, importResponse{
		Version:  res.Version,
		Legacy:   res.Legacy,
		Migrated: res.Migrated,
		Warnings: nonNil(res.Warnings()),
		Budgets:  res.Budgets,
		Expenses: res.Expenses,
	})
}

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "All budgets and expenses deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleExtract reads a receipt image and returns the fields found on it.
// Nothing is recorded; the client prefills its expense form.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	image, err := readUpload(w, r, s.maxUpload, "image")
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), ocrTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.extractor.ExtractExpenseData(ctx, image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Receipt extracted", log.NewFields().
		WithComponent(log.ComponentOCR).
		WithOperation(log.OpExtract).
		WithHTTPResponse(http.StatusOK, time.Since(start).Milliseconds(), true).ToSlice()...)
	writeJSON(w, res)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, nonNil[amqp.NoticeMessage](s.svc.Notices()))
}
