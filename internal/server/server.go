// Package server exposes the per-entity admin HTTP surface: table views,
// inline and batch edits, spreadsheet import/export and reconciliation
// reports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/directory"
	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/mapping"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
)

// Server wires the admin endpoints.
type Server struct {
	registry   *entity.Registry
	dir        directory.Store
	stores     Stores
	sessions   *Sessions
	syncer     *reconcile.Syncer
	importOpts mapping.ImportOptions
	origins    []string
}

// New creates a Server.
func New(registry *entity.Registry, dir directory.Store, stores Stores, sessions *Sessions, syncer *reconcile.Syncer, importOpts mapping.ImportOptions, origins []string) *Server {
	return &Server{
		registry:   registry,
		dir:        dir,
		stores:     stores,
		sessions:   sessions,
		syncer:     syncer,
		importOpts: importOpts,
		origins:    origins,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/projetos", s.handleListProjects)
	r.Post("/projetos/selecionar", s.handleSelectProject)

	r.Route("/{entity}", func(r chi.Router) {
		r.Use(s.entityCtx)
		r.Get("/", s.handleView)
		r.Get("/exportar", s.handleExport)
		r.Post("/exportar_filtrados", s.handleExportFiltered)
		r.Get("/export_wf", s.handleExportWF)
		r.Post("/importar", s.handleImport)
		r.Post("/update", s.handleUpdate)
		r.Post("/update_batch", s.handleUpdateBatch)
		r.Get("/get_descricao_wf/{code}", s.handleGetDescricaoWF)
		r.Get("/reconciliar", s.handleReconcile)
	})

	return r
}

type ctxKey int

const (
	ctxDescriptor ctxKey = iota
	ctxProject
)

// entityCtx resolves the entity descriptor and the session's project. The
// table view redirects to project selection when no project is picked;
// API-style endpoints answer with a JSON error instead.
func (s *Server) entityCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "entity")
		desc, err := s.registry.Get(slug)
		if err != nil {
			jsonError(w, http.StatusNotFound, "entidade desconhecida: "+slug)
			return
		}

		nome, ok := s.sessions.projectFromRequest(r)
		if !ok {
			if r.Method == http.MethodGet && r.URL.Path == "/"+slug+"/" {
				http.Redirect(w, r, "/projetos", http.StatusSeeOther)
				return
			}
			jsonError(w, http.StatusUnauthorized, "nenhum projeto selecionado")
			return
		}

		project, err := s.dir.Resolve(r.Context(), nome)
		if err != nil {
			if errors.Is(err, directory.ErrProjectNotFound) {
				jsonError(w, http.StatusUnauthorized, "projeto não encontrado: "+nome)
				return
			}
			zap.L().Error("directory resolve failed", zap.String("projeto", nome), zap.Error(err))
			jsonError(w, http.StatusBadGateway, "falha ao consultar o diretório de projetos")
			return
		}

		ctx := context.WithValue(r.Context(), ctxDescriptor, desc)
		ctx = context.WithValue(ctx, ctxProject, project)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func descriptorFrom(ctx context.Context) *entity.Descriptor {
	return ctx.Value(ctxDescriptor).(*entity.Descriptor)
}

func projectFrom(ctx context.Context) *directory.Project {
	return ctx.Value(ctxProject).(*directory.Project)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}
