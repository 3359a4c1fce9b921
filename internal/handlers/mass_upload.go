package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/correction"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/middleware"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/parser"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/services"
	"site-mass-upload/internal/templates"
)

var xlsxContentType = templates.FormatXLSX.ContentType()

// MassUploadHandler serves the entity catalogue, templates, previews,
// revalidation and import endpoints
type MassUploadHandler struct {
	logger         *logger.Logger
	registry       *registry.Registry
	revalidation   services.RevalidationService
	imports        services.ImportService
	resolver       services.ReferenceResolver
	errorHandler   *services.ErrorHandler
	metrics        *UploadMetrics
	maxUploadBytes int64
}

// NewMassUploadHandler creates a new mass-upload handler
func NewMassUploadHandler(
	logger *logger.Logger,
	reg *registry.Registry,
	revalidation services.RevalidationService,
	imports services.ImportService,
	resolver services.ReferenceResolver,
	errorHandler *services.ErrorHandler,
	metrics *UploadMetrics,
	cfg *config.Config,
) *MassUploadHandler {
	maxUpload := cfg.Import.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &MassUploadHandler{
		logger:         logger,
		registry:       reg,
		revalidation:   revalidation,
		imports:        imports,
		resolver:       resolver,
		errorHandler:   errorHandler,
		metrics:        metrics,
		maxUploadBytes: maxUpload,
	}
}

// RegisterRoutes mounts the mass-upload API under /api/v1/mass-upload
func (h *MassUploadHandler) RegisterRoutes(router *mux.Router, auth *middleware.AuthenticationMiddleware) {
	router.HandleFunc("/api/v1/mass-upload/openapi.json", h.OpenAPI).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1/mass-upload").Subrouter()
	if auth != nil {
		api.Use(auth.RequireJWT)
	}

	api.HandleFunc("/entities", h.metrics.Instrument("list_entities", h.ListEntities)).Methods(http.MethodGet)
	api.HandleFunc("/entities/{entity}", h.metrics.Instrument("get_entity", h.GetEntity)).Methods(http.MethodGet)
	api.HandleFunc("/entities/{entity}/template", h.metrics.Instrument("template", h.GetTemplate)).Methods(http.MethodGet)
	api.HandleFunc("/entities/{entity}/parse", h.metrics.Instrument("parse", h.Parse)).Methods(http.MethodPost)
	api.HandleFunc("/revalidate", h.metrics.Instrument("revalidate", h.Revalidate)).Methods(http.MethodPost)
	api.HandleFunc("/import", h.metrics.Instrument("import", h.Import)).Methods(http.MethodPost)
	api.HandleFunc("/imports", h.metrics.Instrument("list_imports", h.ListImports)).Methods(http.MethodGet)
	api.HandleFunc("/imports/{id}", h.metrics.Instrument("get_import", h.GetImport)).Methods(http.MethodGet)
	api.HandleFunc("/references/refresh", h.metrics.Instrument("refresh_references", h.RefreshReferences)).Methods(http.MethodPost)
}

// EntitySummary is one entry of the entity catalogue
type EntitySummary struct {
	Name            string                      `json:"name"`
	DisplayName     string                      `json:"display_name"`
	Description     string                      `json:"description,omitempty"`
	RequiredContext []models.ContextRequirement `json:"required_context,omitempty"`
	Upsert          bool                        `json:"upsert"`
	FieldCount      int                         `json:"field_count"`
}

// ListEntities handles GET /entities
func (h *MassUploadHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	tables := h.registry.ListImportable()
	entities := make([]EntitySummary, 0, len(tables))
	for _, t := range tables {
		entities = append(entities, EntitySummary{
			Name:            t.Name,
			DisplayName:     t.DisplayName,
			Description:     t.Description,
			RequiredContext: t.RequiredContext,
			Upsert:          t.HasUpsertKey(),
			FieldCount:      len(t.Fields),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entities": entities})
}

// GetEntity handles GET /entities/{entity}
func (h *MassUploadHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.registry.Lookup(mux.Vars(r)["entity"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// GetTemplate handles GET /entities/{entity}/template?format=csv|xlsx
func (h *MassUploadHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.registry.Lookup(mux.Vars(r)["entity"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	format, err := templates.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err))
		return
	}

	body, err := templates.Render(cfg, format)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("failed to render template: %w", err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName(cfg.Name)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Parse handles POST /entities/{entity}/parse. The body is either the raw
// file or a multipart form with a "file" part; .xlsx content is detected by
// content type, file extension or ?format=xlsx.
func (h *MassUploadHandler) Parse(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.registry.Lookup(mux.Vars(r)["entity"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	data, workbook, err := h.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes),
			})
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err))
		return
	}

	var res *models.ParseResult
	if workbook {
		res, err = parser.ParseWorkbook(bytes.NewReader(data), cfg)
	} else {
		res, err = parser.Parse(string(data), cfg)
	}
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err))
		return
	}

	if r.URL.Query().Get("skip_samples") == "true" {
		res = correction.SkipAllSamples(res)
	}

	h.metrics.ObserveParse(res)
	h.logger.WithEntity(cfg.Name).WithFields(map[string]interface{}{
		"total_rows": res.TotalRows,
		"errors":     res.ErrorRows,
	}).Info("Parsed upload")

	h.writeJSON(w, http.StatusOK, res)
}

func (h *MassUploadHandler) readUpload(r *http.Request) ([]byte, bool, error) {
	workbook := r.URL.Query().Get("format") == string(templates.FormatXLSX)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, false, fmt.Errorf("missing file part: %w", err)
		}
		defer file.Close()

		if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") ||
			header.Header.Get("Content-Type") == xlsxContentType {
			workbook = true
		}
		data, err := io.ReadAll(file)
		return data, workbook, err
	}

	if r.Header.Get("Content-Type") == xlsxContentType {
		workbook = true
	}
	data, err := io.ReadAll(r.Body)
	return data, workbook, err
}

// Revalidate handles POST /revalidate
func (h *MassUploadHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	var req models.RevalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON: %v", services.ErrInvalidRequest, err))
		return
	}
	req.Context = h.callerContext(r, req.Context)

	resp, err := h.revalidation.Revalidate(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.metrics.ObserveLookupErrors(req.Entity, len(resp.LookupErrors))
	h.writeJSON(w, http.StatusOK, resp)
}

// Import handles POST /import
func (h *MassUploadHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req models.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid JSON: %v", services.ErrInvalidRequest, err))
		return
	}
	req.Context = h.callerContext(r, req.Context)

	resp, err := h.imports.Import(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.metrics.ObserveImport(req.Entity, resp.Summary)
	h.writeJSON(w, http.StatusOK, resp)
}

// ListImports handles GET /imports?entity=&limit=
func (h *MassUploadHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.imports.ListRuns(r.Context(), r.URL.Query().Get("entity"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// GetImport handles GET /imports/{id}
func (h *MassUploadHandler) GetImport(w http.ResponseWriter, r *http.Request) {
	run, err := h.imports.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// RefreshReferences handles POST /references/refresh?table=
func (h *MassUploadHandler) RefreshReferences(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.Refresh(r.Context(), r.URL.Query().Get("table")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// callerContext builds the ambient context from the authenticated caller.
// Identity always comes from the token; the site comes from the token when
// it carries one, otherwise from the request body.
func (h *MassUploadHandler) callerContext(r *http.Request, fromBody models.CallerContext) models.CallerContext {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return fromBody
	}
	ctx := *caller
	if ctx.SiteID == "" {
		ctx.SiteID = fromBody.SiteID
	}
	return ctx
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Details string `json:"details,omitempty"`
}

func (h *MassUploadHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	classified := h.errorHandler.HandleError(r.Context(), err, map[string]interface{}{
		"operation": endpointFrom(r.Context()),
		"path":      r.URL.Path,
		"method":    r.Method,
	})

	status := classified.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	resp := ErrorResponse{Error: classified.Message, Type: string(classified.Type)}
	if status < http.StatusInternalServerError {
		resp.Details = err.Error()
	}
	h.writeJSON(w, status, resp)
}

func (h *MassUploadHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
