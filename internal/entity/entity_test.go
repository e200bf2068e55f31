package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	all := r.All()
	require.Len(t, all, 10)

	for _, d := range all {
		assert.NoError(t, d.Validate(), d.Slug)
	}

	slugs := make([]string, len(all))
	for i, d := range all {
		slugs[i] = d.Slug
	}
	assert.Contains(t, slugs, "municipio")
	assert.Contains(t, slugs, "codigo_montadora")
	assert.Contains(t, slugs, "tipo_logradouro")
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("moeda")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")
}

func TestMontadoraHasNoDescription(t *testing.T) {
	r := NewRegistry()
	d, err := r.Get("codigo_montadora")
	require.NoError(t, err)

	assert.False(t, d.HasDescription())
	assert.False(t, d.SyncOnEdit)
	assert.True(t, d.IsEditable("marca_cd"))
	assert.False(t, d.IsEditable("mont_cd"))
}

func TestLogradouroCompositeKey(t *testing.T) {
	r := NewRegistry()
	d, err := r.Get("tipo_logradouro")
	require.NoError(t, err)

	assert.Equal(t, []string{"tplog_sg", "tplog_nm"}, d.NaturalKey)
	assert.True(t, d.HasDescription())
}

func TestExportHeadersUseCanonicalSpelling(t *testing.T) {
	r := NewRegistry()
	d, err := r.Get("municipio")
	require.NoError(t, err)

	headers := d.ExportHeaders()
	assert.Equal(t, []string{"Codigo de Origem", "Descricao de Origem", "Codigo WF", "Descricao WF"}, headers)
}

func TestValidateRejectsBadDescriptors(t *testing.T) {
	d := &Descriptor{Slug: "x"}
	require.Error(t, d.Validate())

	d = &Descriptor{
		Slug:             "x",
		MappingTable:     "t",
		GoldenTable:      "g",
		GoldenCodeColumn: "codigo",
		NaturalKey:       []string{"a"},
		TargetCodeField:  "b",
		Fields: []Field{
			{Name: "a", Headers: []string{"A"}},
			{Name: "b", Headers: []string{"B"}},
		},
		Editable: []string{"nope"},
	}
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "editable")
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entities.yaml")
	overlay := `
entities:
  - slug: moeda
    name: Moeda
    mapping_table: depara_moeda
    golden_table: wf_moeda
    golden_code_column: codigo
    golden_desc_column: descricao
    natural_key: [moeda_cd]
    fields:
      - name: moeda_cd
        headers: ["Codigo de Origem", "moeda_cd"]
        required: true
      - name: codigo_wf
        headers: ["Codigo WF", "codigo_wf"]
      - name: descricao_wf
        headers: ["Descricao WF", "descricao_wf"]
    editable: [codigo_wf, descricao_wf]
    target_code_field: codigo_wf
    target_desc_field: descricao_wf
    sync_on_edit: true
`
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0644))

	r := NewRegistry()
	require.NoError(t, r.LoadOverlay(path))

	d, err := r.Get("moeda")
	require.NoError(t, err)
	assert.Equal(t, "depara_moeda", d.MappingTable)
	assert.True(t, d.SyncOnEdit)
}

func TestLoadOverlayMissingFileIsNoop(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.LoadOverlay(filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, r.LoadOverlay(""))
}

func TestLoadOverlayRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities:\n  - slug: broken\n"), 0644))

	r := NewRegistry()
	require.Error(t, r.LoadOverlay(path))
}
