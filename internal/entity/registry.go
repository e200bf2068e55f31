package entity

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Registry holds the known entity descriptors keyed by slug.
type Registry struct {
	entities map[string]*Descriptor
}

// codeWF and descWF are the shared target columns every DePara table carries.
func codeWF(extraHeaders ...string) Field {
	return Field{Name: "codigo_wf", Headers: append([]string{"Codigo WF", "codigo_wf", "De Para"}, extraHeaders...)}
}

func descWF() Field {
	return Field{Name: "descricao_wf", Headers: []string{"Descricao WF", "descricao_wf"}}
}

// standard builds the common single-key descriptor shape shared by most
// entities: source code + description, target code + description.
func standard(slug, name, prefix string) *Descriptor {
	cd := prefix + "_cd"
	ds := prefix + "_ds"
	return &Descriptor{
		Slug:             slug,
		Name:             name,
		MappingTable:     "depara_" + slug,
		GoldenTable:      "wf_" + slug,
		GoldenCodeColumn: "codigo",
		GoldenDescColumn: "descricao",
		NaturalKey:       []string{cd},
		Fields: []Field{
			{Name: cd, Headers: []string{"Codigo de Origem", cd}, Required: true},
			{Name: ds, Headers: []string{"Descricao de Origem", ds}},
			codeWF(),
			descWF(),
		},
		Editable:        []string{"codigo_wf", "descricao_wf"},
		TargetCodeField: "codigo_wf",
		TargetDescField: "descricao_wf",
		SyncOnEdit:      true,
	}
}

// NewRegistry returns the built-in registry of reference-data entities.
func NewRegistry() *Registry {
	montadora := &Descriptor{
		Slug:             "codigo_montadora",
		Name:             "CodigoMontadora",
		MappingTable:     "depara_codigo_montadora",
		GoldenTable:      "wf_codigo_montadora",
		GoldenCodeColumn: "codigo",
		NaturalKey:       []string{"mont_cd"},
		Fields: []Field{
			{Name: "mont_cd", Headers: []string{"Codigo de Origem", "mont_cd"}, Required: true},
			{Name: "mont_ds", Headers: []string{"Descricao de Origem", "mont_ds"}},
			{Name: "marca_cd", Headers: []string{"Codigo da Marca", "marca_cd"}},
			codeWF(),
		},
		Editable:        []string{"codigo_wf", "marca_cd"},
		TargetCodeField: "codigo_wf",
		// No description column on the golden table for this one, so there
		// is nothing to mirror and nothing to sync.
		TargetDescField: "",
		SyncOnEdit:      false,
	}

	logradouro := &Descriptor{
		Slug:               "tipo_logradouro",
		Name:               "TipoLogradouro",
		MappingTable:       "depara_tipo_logradouro",
		GoldenTable:        "wf_tipo_logradouro",
		GoldenCodeColumn:   "codigo",
		GoldenDescColumn:   "descricao",
		GoldenActiveColumn: "ativo",
		NaturalKey:         []string{"tplog_sg", "tplog_nm"},
		Fields: []Field{
			{Name: "tplog_sg", Headers: []string{"Sigla", "tplog_sg"}, Required: true},
			{Name: "tplog_nm", Headers: []string{"Nome", "tplog_nm"}, Required: true},
			{Name: "letra", Headers: []string{"Letra", "letra"}},
			codeWF(),
			descWF(),
		},
		Editable:        []string{"codigo_wf", "descricao_wf", "letra"},
		TargetCodeField: "codigo_wf",
		TargetDescField: "descricao_wf",
		SyncOnEdit:      true,
	}

	classif := standard("classificacao_veiculo", "ClassificacaoVeiculo", "classif")
	classif.Fields = append(classif.Fields, Field{Name: "ativo", Headers: []string{"Ativo", "ativo"}})
	classif.Editable = append(classif.Editable, "ativo")

	descriptors := []*Descriptor{
		standard("condicao_pagamento", "CondicaoPagamento", "cond"),
		standard("departamento", "Departamento", "depto"),
		standard("estado_civil", "EstadoCivil", "estciv"),
		standard("tipo_estoque", "TipoEstoque", "tpest"),
		standard("municipio", "Municipio", "mun"),
		standard("pais", "Pais", "pais"),
		montadora,
		standard("profissao", "Profissao", "prof"),
		logradouro,
		classif,
	}

	r := &Registry{entities: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			// Built-in descriptors are validated by tests; a bad one is a
			// programming error.
			panic(err)
		}
		r.entities[d.Slug] = d
	}
	return r
}

// Get returns the descriptor for a slug.
func (r *Registry) Get(slug string) (*Descriptor, error) {
	d, ok := r.entities[slug]
	if !ok {
		return nil, eris.Errorf("entity: unknown entity %q", slug)
	}
	return d, nil
}

// All returns every descriptor sorted by slug.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.entities))
	for _, d := range r.entities {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// add registers or replaces a descriptor. Used by the YAML overlay.
func (r *Registry) add(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.entities[d.Slug] = d
	return nil
}
