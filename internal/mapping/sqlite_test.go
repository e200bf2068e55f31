package mapping

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/refdata-tools/depara-admin/internal/entity"
)

func openSQLite(t *testing.T, slug string) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	desc, err := entity.NewRegistry().Get(slug)
	require.NoError(t, err)

	s := NewSQLite(db, desc)
	require.NoError(t, s.Migrate(context.Background()))
	return s, db
}

func TestSQLiteImportUpsertSemantics(t *testing.T) {
	s, _ := openSQLite(t, "municipio")
	ctx := context.Background()

	res, err := s.Import(ctx, []Record{
		{"mun_cd": "X1", "mun_ds": "Um", "codigo_wf": "10"},
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Updated)

	// Same natural key with a changed code: exactly one row, updated code.
	res, err = s.Import(ctx, []Record{
		{"mun_cd": "X1", "codigo_wf": "20"},
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Updated)

	rows, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "X1", rows[0].Get("mun_cd"))
	assert.Equal(t, "20", rows[0].Get("codigo_wf"))
	// Fields absent from the import record keep their value.
	assert.Equal(t, "Um", rows[0].Get("mun_ds"))

	// New key inserts exactly one new row.
	res, err = s.Import(ctx, []Record{
		{"mun_cd": "X2", "codigo_wf": "30"},
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	rows, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLiteImportBatchCommit(t *testing.T) {
	s, _ := openSQLite(t, "pais")
	ctx := context.Background()

	var records []Record
	for i := 0; i < 7; i++ {
		records = append(records, Record{"pais_cd": string(rune('A' + i)), "codigo_wf": "1"})
	}

	res, err := s.Import(ctx, records, ImportOptions{BatchCommitRows: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Inserted)

	rows, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 7)
}

func TestSQLiteImportCompositeNaturalKey(t *testing.T) {
	s, _ := openSQLite(t, "tipo_logradouro")
	ctx := context.Background()

	res, err := s.Import(ctx, []Record{
		{"tplog_sg": "R", "tplog_nm": "Rua", "codigo_wf": "1"},
		{"tplog_sg": "R", "tplog_nm": "Rodovia", "codigo_wf": "2"},
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	// Same sigla, same name: update, not a third row.
	res, err = s.Import(ctx, []Record{
		{"tplog_sg": "R", "tplog_nm": "Rua", "codigo_wf": "9"},
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	rows, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLiteUpdateFieldAllowList(t *testing.T) {
	s, _ := openSQLite(t, "municipio")
	ctx := context.Background()

	_, err := s.Import(ctx, []Record{{"mun_cd": "X1"}}, ImportOptions{})
	require.NoError(t, err)

	rows, err := s.ListAll(ctx)
	require.NoError(t, err)
	id := rows[0].ID

	require.NoError(t, s.UpdateField(ctx, id, "codigo_wf", "123"))

	err = s.UpdateField(ctx, id, "mun_cd", "tamper")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFieldNotAllowed))

	err = s.UpdateField(ctx, id+100, "codigo_wf", "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordNotFound))

	rows, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "X1", rows[0].Get("mun_cd"))
	assert.Equal(t, "123", rows[0].Get("codigo_wf"))
}

func TestSQLiteImportErrorCap(t *testing.T) {
	s, db := openSQLite(t, "municipio")
	ctx := context.Background()

	// A CHECK constraint makes specific rows fail without aborting the rest.
	_, err := db.Exec(`DROP TABLE depara_municipio`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE depara_municipio (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mun_cd TEXT, mun_ds TEXT, codigo_wf TEXT CHECK (codigo_wf != 'bad'), descricao_wf TEXT
	)`)
	require.NoError(t, err)

	var records []Record
	for i := 0; i < 4; i++ {
		records = append(records, Record{"mun_cd": string(rune('a' + i)), "codigo_wf": "bad"})
	}
	records = append(records, Record{"mun_cd": "ok", "codigo_wf": "1"})

	res, err := s.Import(ctx, records, ImportOptions{MaxRowErrors: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 4, res.Failed)
	require.Len(t, res.Errors, 2)
	// Errors carry spreadsheet row numbers: the first record is row 2.
	assert.Equal(t, 2, res.Errors[0].RowNumber)
	assert.Equal(t, 3, res.Errors[1].RowNumber)
}
