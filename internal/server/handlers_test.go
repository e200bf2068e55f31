package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/refdata-tools/depara-admin/internal/directory"
	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/golden"
	"github.com/refdata-tools/depara-admin/internal/mapping"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
)

type fakeDir struct {
	projects []directory.Project
}

func (d *fakeDir) ListProjects(ctx context.Context) ([]directory.Project, error) {
	return d.projects, nil
}

func (d *fakeDir) Migrate(ctx context.Context) error { return nil }

func (d *fakeDir) Resolve(ctx context.Context, nome string) (*directory.Project, error) {
	for i := range d.projects {
		if d.projects[i].Nome == nome {
			return &d.projects[i], nil
		}
	}
	return nil, directory.ErrProjectNotFound
}

type memStore struct {
	mu   sync.Mutex
	rows []mapping.Row
}

func (m *memStore) ListAll(ctx context.Context) ([]mapping.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mapping.Row, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memStore) UpdateField(ctx context.Context, id int64, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if field != "codigo_wf" && field != "descricao_wf" {
		return mapping.ErrFieldNotAllowed
	}
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Fields[field] = value
			return nil
		}
	}
	return mapping.ErrRecordNotFound
}

func (m *memStore) Import(ctx context.Context, records []mapping.Record, opts mapping.ImportOptions) (*mapping.ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &mapping.ImportResult{}
	for _, rec := range records {
		fields := make(map[string]string, len(rec))
		for k, v := range rec {
			fields[k] = v
		}
		m.rows = append(m.rows, mapping.Row{ID: int64(len(m.rows) + 1), Fields: fields})
		res.Inserted++
	}
	return res, nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }

type fakeGolden struct {
	codes golden.CodeSet
	descs map[string]string
}

func (g *fakeGolden) ListCodes(ctx context.Context) golden.CodeSet { return g.codes }

func (g *fakeGolden) LookupDescription(ctx context.Context, code string) (string, bool) {
	d, ok := g.descs[code]
	return d, ok
}

func (g *fakeGolden) ListRecords(ctx context.Context) ([]golden.Record, error) {
	var out []golden.Record
	for code := range g.codes {
		out = append(out, golden.Record{Code: code, Description: g.descs[code]})
	}
	return out, nil
}

type fakeStores struct {
	store  *memStore
	source *fakeGolden
}

func (f *fakeStores) Mapping(ctx context.Context, p *directory.Project, desc *entity.Descriptor) (mapping.Store, error) {
	return f.store, nil
}

func (f *fakeStores) Golden(ctx context.Context, p *directory.Project, desc *entity.Descriptor) (golden.Source, error) {
	return f.source, nil
}

func testServer(t *testing.T, store *memStore, source *fakeGolden) (*Server, string) {
	t.Helper()
	dir := &fakeDir{projects: []directory.Project{
		{Nome: "loja_sul", BancoDePara: "depara_sul", BancoHomo: "homo_sul"},
	}}
	srv := New(
		entity.NewRegistry(),
		dir,
		&fakeStores{store: store, source: source},
		NewSessions(time.Hour),
		reconcile.NewSyncer(2),
		mapping.ImportOptions{BatchCommitRows: 100, MaxRowErrors: 10},
		nil,
	)
	token := srv.sessions.Create("loja_sul")
	return srv, token
}

func doRequest(srv *Server, token string, req *http.Request) *httptest.ResponseRecorder {
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("arquivo", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func buildSheet(t *testing.T, headers []string, rows ...[]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	s, err := f.AddSheet("Plan1")
	require.NoError(t, err)
	hr := s.AddRow()
	for _, h := range headers {
		hr.AddCell().SetString(h)
	}
	for _, row := range rows {
		r := s.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestUnknownEntity(t *testing.T) {
	srv, token := testServer(t, &memStore{}, &fakeGolden{})
	rec := doRequest(srv, token, httptest.NewRequest(http.MethodGet, "/nao_existe/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewRedirectsWithoutProject(t *testing.T) {
	srv, _ := testServer(t, &memStore{}, &fakeGolden{})

	rec := doRequest(srv, "", httptest.NewRequest(http.MethodGet, "/departamento/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/projetos", rec.Header().Get("Location"))

	// Non-view endpoints answer JSON instead of redirecting.
	rec = doRequest(srv, "", httptest.NewRequest(http.MethodPost, "/departamento/update",
		strings.NewReader(`{"id":1,"field":"codigo_wf","value":"X"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSelectProject(t *testing.T) {
	srv, _ := testServer(t, &memStore{}, &fakeGolden{})

	rec := doRequest(srv, "", httptest.NewRequest(http.MethodPost, "/projetos/selecionar",
		strings.NewReader(`{"projeto":"loja_sul"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	projeto, ok := srv.sessions.Project(cookie.Value)
	assert.True(t, ok)
	assert.Equal(t, "loja_sul", projeto)
}

func TestSelectUnknownProject(t *testing.T) {
	srv, _ := testServer(t, &memStore{}, &fakeGolden{})
	rec := doRequest(srv, "", httptest.NewRequest(http.MethodPost, "/projetos/selecionar",
		strings.NewReader(`{"projeto":"inexistente"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewClassifiesRows(t *testing.T) {
	store := &memStore{rows: []mapping.Row{
		{ID: 1, Fields: map[string]string{"depto_cd": "01", "codigo_wf": "100"}},
		{ID: 2, Fields: map[string]string{"depto_cd": "02", "codigo_wf": "S/DePara"}},
		{ID: 3, Fields: map[string]string{"depto_cd": "03", "codigo_wf": ""}},
		{ID: 4, Fields: map[string]string{"depto_cd": "04", "codigo_wf": "999"}},
	}}
	source := &fakeGolden{codes: golden.CodeSet{"100": {}}}
	srv, token := testServer(t, store, source)

	rec := doRequest(srv, token, httptest.NewRequest(http.MethodGet, "/departamento/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	registros := body["registros"].([]any)
	require.Len(t, registros, 4)

	statuses := make(map[float64]string)
	for _, r := range registros {
		reg := r.(map[string]any)
		statuses[reg["id"].(float64)] = reg["status"].(string)
	}
	assert.Equal(t, "valid", statuses[1])
	assert.Equal(t, "sem_depara", statuses[2])
	assert.Equal(t, "unmapped", statuses[3])
	assert.Equal(t, "invalid", statuses[4])
	assert.Equal(t, true, body["golden_available"])
}

func TestUpdateNormalizesSentinel(t *testing.T) {
	store := &memStore{rows: []mapping.Row{
		{ID: 1, Fields: map[string]string{"depto_cd": "01", "codigo_wf": ""}},
	}}
	srv, token := testServer(t, store, &fakeGolden{})

	rec := doRequest(srv, token, httptest.NewRequest(http.MethodPost, "/departamento/update",
		strings.NewReader(`{"id":1,"field":"codigo_wf","value":"  s/depara  "}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "S/DePara", store.rows[0].Fields["codigo_wf"])
}

func TestUpdateRejectsNonEditableField(t *testing.T) {
	srv, token := testServer(t, &memStore{}, &fakeGolden{})
	rec := doRequest(srv, token, httptest.NewRequest(http.MethodPost, "/departamento/update",
		strings.NewReader(`{"id":1,"field":"depto_cd","value":"99"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateUnknownRecord(t *testing.T) {
	srv, token := testServer(t, &memStore{}, &fakeGolden{})
	rec := doRequest(srv, token, httptest.NewRequest(http.MethodPost, "/departamento/update",
		strings.NewReader(`{"id":42,"field":"codigo_wf","value":"1"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateBatchBestEffort(t *testing.T) {
	var rows []mapping.Row
	for i := 1; i <= 10; i++ {
		rows = append(rows, mapping.Row{
			ID:     int64(i),
			Fields: map[string]string{"depto_cd": fmt.Sprintf("%02d", i), "codigo_wf": ""},
		})
	}
	store := &memStore{rows: rows}
	srv, token := testServer(t, store, &fakeGolden{})

	var updates []string
	for i := 1; i <= 9; i++ {
		updates = append(updates, fmt.Sprintf(`{"id":%d,"field":"codigo_wf","value":"%d"}`, i, i))
	}
	updates = append(updates, `{"id":10,"field":"depto_cd","value":"x"}`)
	payload := `{"updates":[` + strings.Join(updates, ",") + `]}`

	rec := doRequest(srv, token, httptest.NewRequest(http.MethodPost, "/departamento/update_batch",
		strings.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(9), body["success_count"])
	assert.Equal(t, float64(1), body["error_count"])
	assert.Equal(t, false, body["success"])
	require.Len(t, body["error_details"], 1)
	// The nine good updates landed despite the bad one.
	for i := 0; i < 9; i++ {
		assert.NotEmpty(t, store.rows[i].Fields["codigo_wf"])
	}
}

func TestGetDescricaoWF(t *testing.T) {
	source := &fakeGolden{
		codes: golden.CodeSet{"100": {}},
		descs: map[string]string{"100": "Departamento Comercial"},
	}
	srv, token := testServer(t, &memStore{}, source)

	rec := doRequest(srv, token, httptest.NewRequest(http.MethodGet, "/departamento/get_descricao_wf/100", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Departamento Comercial", decodeBody(t, rec)["descricao"])

	rec = doRequest(srv, token, httptest.NewRequest(http.MethodGet, "/departamento/get_descricao_wf/999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportSpreadsheet(t *testing.T) {
	store := &memStore{rows: []mapping.Row{
		{ID: 1, Fields: map[string]string{"depto_cd": "01", "codigo_wf": "100"}},
	}}
	srv, token := testServer(t, store, &fakeGolden{codes: golden.CodeSet{"100": {}}})

	rec := doRequest(srv, token, httptest.NewRequest(http.MethodGet, "/departamento/exportar", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Departamento_DePara.xlsx")

	f, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	// Header row plus one data row.
	assert.Len(t, f.Sheets[0].Rows, 2)
}

func TestExportWF(t *testing.T) {
	source := &fakeGolden{
		codes: golden.CodeSet{"100": {}},
		descs: map[string]string{"100": "Comercial"},
	}
	srv, token := testServer(t, &memStore{}, source)

	rec := doRequest(srv, token, httptest.NewRequest(http.MethodGet, "/departamento/export_wf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Departamento_WF.xlsx")
}

func TestExportFiltered(t *testing.T) {
	srv, token := testServer(t, &memStore{}, &fakeGolden{codes: golden.CodeSet{"100": {}}})

	payload := `{
		"headers": ["Codigo de Origem", "Codigo WF"],
		"registros": [{"Codigo de Origem": "01", "Codigo WF": "100"}]
	}`
	rec := doRequest(srv, token, httptest.NewRequest(http.MethodPost, "/departamento/exportar_filtrados",
		strings.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Departamento_Filtrado.xlsx")
}

func TestImportSpreadsheet(t *testing.T) {
	store := &memStore{}
	source := &fakeGolden{codes: golden.CodeSet{"100": {}}, descs: map[string]string{"100": "Comercial"}}
	srv, token := testServer(t, store, source)

	content := buildSheet(t,
		[]string{"Código de Origem", "Descrição de Origem", "Codigo WF", "Descricao WF"},
		[]string{"01", "Vendas", "100", ""},
	)
	body, contentType := multipartUpload(t, "mapa.xlsx", content)

	req := httptest.NewRequest(http.MethodPost, "/departamento/importar", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(srv, token, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(1), resp["inserted"])
	require.Len(t, store.rows, 1)
	// The mandatory post-import sync filled the golden description.
	assert.Equal(t, "Comercial", store.rows[0].Fields["descricao_wf"])
}

func TestImportRejectsWrongExtension(t *testing.T) {
	srv, token := testServer(t, &memStore{}, &fakeGolden{})

	body, contentType := multipartUpload(t, "mapa.csv", []byte("a,b,c"))
	req := httptest.NewRequest(http.MethodPost, "/departamento/importar", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(srv, token, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportMissingColumns(t *testing.T) {
	srv, token := testServer(t, &memStore{}, &fakeGolden{})

	content := buildSheet(t, []string{"Coluna Errada"})
	body, contentType := multipartUpload(t, "mapa.xlsx", content)
	req := httptest.NewRequest(http.MethodPost, "/departamento/importar", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(srv, token, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "colunas obrigatórias")
}

func TestReconcileReport(t *testing.T) {
	store := &memStore{rows: []mapping.Row{
		{ID: 1, Fields: map[string]string{"depto_cd": "01", "codigo_wf": "100"}},
		{ID: 2, Fields: map[string]string{"depto_cd": "02", "codigo_wf": ""}},
	}}
	srv, token := testServer(t, store, &fakeGolden{codes: golden.CodeSet{"100": {}}})

	rec := doRequest(srv, token, httptest.NewRequest(http.MethodGet, "/departamento/reconciliar", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	report := body["report"].(map[string]any)
	byStatus := report["by_status"].(map[string]any)
	assert.Equal(t, float64(1), byStatus["valid"])
	assert.Equal(t, float64(1), byStatus["unmapped"])
}

func TestListProjects(t *testing.T) {
	srv, _ := testServer(t, &memStore{}, &fakeGolden{})
	rec := doRequest(srv, "", httptest.NewRequest(http.MethodGet, "/projetos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["projetos"], 1)
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, &memStore{}, &fakeGolden{})
	rec := doRequest(srv, "", httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
