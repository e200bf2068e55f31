package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/golden"
	"github.com/refdata-tools/depara-admin/internal/mapping"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
	"github.com/refdata-tools/depara-admin/internal/sheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.dir.ListProjects(r.Context())
	if err != nil {
		zap.L().Error("list projects failed", zap.Error(err))
		jsonError(w, http.StatusBadGateway, "falha ao consultar o diretório de projetos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projetos": projects})
}

func (s *Server) handleSelectProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Projeto string `json:"projeto"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Projeto == "" {
		jsonError(w, http.StatusBadRequest, "corpo inválido: informe o projeto")
		return
	}

	if _, err := s.dir.Resolve(r.Context(), req.Projeto); err != nil {
		jsonError(w, http.StatusNotFound, "projeto não encontrado: "+req.Projeto)
		return
	}

	token := s.sessions.Create(req.Projeto)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projeto": req.Projeto})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	ms, err := s.stores.Mapping(ctx, project, desc)
	if err != nil {
		zap.L().Error("mapping store unavailable", zap.String("entity", desc.Slug), zap.Error(err))
		jsonError(w, http.StatusBadGateway, "banco DePara indisponível")
		return
	}
	rows, err := ms.ListAll(ctx)
	if err != nil {
		zap.L().Error("list rows failed", zap.String("entity", desc.Slug), zap.Error(err))
		jsonError(w, http.StatusBadGateway, "falha ao listar registros")
		return
	}

	// Golden reads fail soft: the view still renders with codes marked
	// unavailable rather than erroring the whole page.
	codes := s.goldenCodes(r, desc)

	registros := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		reg := make(map[string]any, len(row.Fields)+2)
		reg["id"] = row.ID
		for _, name := range desc.FieldNames() {
			reg[name] = row.Get(name)
		}
		reg["status"] = reconcile.Classify(row.Get(desc.TargetCodeField), codes).String()
		registros = append(registros, reg)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"registros":        registros,
		"golden_available": len(codes) > 0,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	ms, err := s.stores.Mapping(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco DePara indisponível")
		return
	}
	rows, err := ms.ListAll(ctx)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "falha ao listar registros")
		return
	}

	f, err := sheet.ExportMapping(desc, rows, s.goldenCodes(r, desc))
	if err != nil {
		zap.L().Error("export failed", zap.String("entity", desc.Slug), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "falha ao gerar a planilha")
		return
	}
	serveXLSX(w, f, desc.Name+"_DePara.xlsx")
}

func (s *Server) handleExportFiltered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)

	var req struct {
		Registros []map[string]string `json:"registros"`
		Headers   []string            `json:"headers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "corpo inválido")
		return
	}
	if len(req.Headers) == 0 {
		jsonError(w, http.StatusBadRequest, "headers obrigatórios")
		return
	}

	f, err := sheet.ExportFiltered(desc, req.Headers, req.Registros, s.goldenCodes(r, desc))
	if err != nil {
		zap.L().Error("filtered export failed", zap.String("entity", desc.Slug), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "falha ao gerar a planilha")
		return
	}
	serveXLSX(w, f, desc.Name+"_Filtrado.xlsx")
}

func (s *Server) handleExportWF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	gs, err := s.stores.Golden(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco de homologação indisponível")
		return
	}
	records, err := gs.ListRecords(ctx)
	if err != nil {
		zap.L().Error("golden export failed", zap.String("entity", desc.Slug), zap.Error(err))
		jsonError(w, http.StatusBadGateway, "falha ao consultar o banco de homologação")
		return
	}

	f, err := sheet.ExportGolden(desc, records)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "falha ao gerar a planilha")
		return
	}
	serveXLSX(w, f, desc.Name+"_WF.xlsx")
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, http.StatusBadRequest, "upload inválido")
		return
	}
	file, header, err := r.FormFile("arquivo")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, "nenhum arquivo enviado")
		return
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx", ".xls":
	default:
		jsonError(w, http.StatusBadRequest, "formato não suportado: envie .xlsx ou .xls")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "falha ao ler o arquivo")
		return
	}

	records, err := sheet.ParseBinary(data, desc)
	if err != nil {
		var mc *sheet.MissingColumnsError
		if errors.As(err, &mc) {
			jsonError(w, http.StatusBadRequest,
				"colunas obrigatórias ausentes: "+strings.Join(mc.Missing, ", "))
			return
		}
		jsonError(w, http.StatusBadRequest, "planilha inválida")
		return
	}

	ms, err := s.stores.Mapping(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco DePara indisponível")
		return
	}
	result, err := ms.Import(ctx, records, s.importOpts)
	if err != nil {
		zap.L().Error("import failed", zap.String("entity", desc.Slug), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, "falha na importação")
		return
	}

	// Post-import description sync is mandatory. A sync failure after the
	// committed import is reported, not rolled back.
	synced := 0
	if desc.HasDescription() {
		gs, gerr := s.stores.Golden(ctx, project, desc)
		if gerr == nil {
			rows, lerr := ms.ListAll(ctx)
			if lerr == nil {
				synced, gerr = s.syncer.SyncDescriptions(ctx, desc, rows, ms, gs)
			}
		}
		if gerr != nil {
			zap.L().Warn("post-import sync incomplete",
				zap.String("entity", desc.Slug), zap.Error(gerr))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": result.Failed == 0,
		"message": fmt.Sprintf("Importação concluída: %d inseridos, %d atualizados, %d com erro",
			result.Inserted, result.Updated, result.Failed),
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"failed":   result.Failed,
		"errors":   result.Errors,
		"synced":   synced,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	var req struct {
		ID    int64  `json:"id"`
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "corpo inválido")
		return
	}

	value := req.Value
	if req.Field == desc.TargetCodeField {
		value = reconcile.NormalizeCode(value)
	} else {
		value = strings.TrimSpace(value)
	}

	ms, err := s.stores.Mapping(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco DePara indisponível")
		return
	}
	if err := ms.UpdateField(ctx, req.ID, req.Field, value); err != nil {
		switch {
		case errors.Is(err, mapping.ErrFieldNotAllowed):
			jsonError(w, http.StatusBadRequest, "campo não editável: "+req.Field)
		case errors.Is(err, mapping.ErrRecordNotFound):
			jsonError(w, http.StatusNotFound, fmt.Sprintf("registro %d não encontrado", req.ID))
		default:
			zap.L().Error("update failed", zap.String("entity", desc.Slug), zap.Error(err))
			jsonError(w, http.StatusInternalServerError, "falha ao atualizar")
		}
		return
	}

	if desc.SyncOnEdit {
		gs, gerr := s.stores.Golden(ctx, project, desc)
		if gerr == nil {
			if _, gerr = s.syncer.SyncAfterEdit(ctx, desc, req.Field, req.ID, value, ms, gs); gerr != nil {
				zap.L().Warn("post-edit sync failed",
					zap.String("entity", desc.Slug), zap.Int64("id", req.ID), zap.Error(gerr))
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "registro atualizado"})
}

func (s *Server) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	var req struct {
		Updates []struct {
			ID    int64  `json:"id"`
			Field string `json:"field"`
			Value string `json:"value"`
		} `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "corpo inválido")
		return
	}

	ms, err := s.stores.Mapping(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco DePara indisponível")
		return
	}

	maxErrors := s.importOpts.MaxRowErrors
	if maxErrors <= 0 {
		maxErrors = 10
	}

	successCount := 0
	errorCount := 0
	var details []string
	for _, u := range req.Updates {
		value := u.Value
		if u.Field == desc.TargetCodeField {
			value = reconcile.NormalizeCode(value)
		} else {
			value = strings.TrimSpace(value)
		}
		if err := ms.UpdateField(ctx, u.ID, u.Field, value); err != nil {
			errorCount++
			if len(details) < maxErrors {
				details = append(details, fmt.Sprintf("id %d: %s", u.ID, errorMessage(err)))
			}
			continue
		}
		successCount++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       errorCount == 0,
		"success_count": successCount,
		"error_count":   errorCount,
		"error_details": details,
	})
}

func (s *Server) handleGetDescricaoWF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	code, err := url.PathUnescape(chi.URLParam(r, "code"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "código inválido")
		return
	}

	gs, err := s.stores.Golden(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco de homologação indisponível")
		return
	}

	descricao, ok := gs.LookupDescription(ctx, reconcile.NormalizeCode(code))
	if !ok {
		jsonError(w, http.StatusNotFound, "código não encontrado no banco de homologação")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "descricao": descricao})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desc := descriptorFrom(ctx)
	project := projectFrom(ctx)

	ms, err := s.stores.Mapping(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco DePara indisponível")
		return
	}
	rows, err := ms.ListAll(ctx)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "falha ao listar registros")
		return
	}
	gs, err := s.stores.Golden(ctx, project, desc)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "banco de homologação indisponível")
		return
	}

	report := reconcile.BuildReport(ctx, desc, rows, gs)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": report})
}

// goldenCodes fetches the code set for status display, degrading to an
// empty set when the homologation database is unreachable.
func (s *Server) goldenCodes(r *http.Request, desc *entity.Descriptor) golden.CodeSet {
	ctx := r.Context()
	gs, err := s.stores.Golden(ctx, projectFrom(ctx), desc)
	if err != nil {
		zap.L().Warn("golden source unavailable", zap.String("entity", desc.Slug), zap.Error(err))
		return golden.CodeSet{}
	}
	return gs.ListCodes(ctx)
}

func serveXLSX(w http.ResponseWriter, f *xlsx.File, filename string) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := sheet.Write(f, w); err != nil {
		zap.L().Error("write spreadsheet failed", zap.String("filename", filename), zap.Error(err))
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, mapping.ErrFieldNotAllowed):
		return "campo não editável"
	case errors.Is(err, mapping.ErrRecordNotFound):
		return "registro não encontrado"
	default:
		return err.Error()
	}
}
