package entity

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// overlayFile is the on-disk shape of an entities.yaml overlay.
type overlayFile struct {
	Entities []*Descriptor `yaml:"entities"`
}

// LoadOverlay merges descriptors from a YAML file into the registry,
// adding new entities or replacing built-ins with the same slug. A missing
// path is not an error; a malformed file is.
func (r *Registry) LoadOverlay(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "entity: read overlay %s", path)
	}

	var f overlayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return eris.Wrapf(err, "entity: parse overlay %s", path)
	}

	for _, d := range f.Entities {
		if err := r.add(d); err != nil {
			return eris.Wrapf(err, "entity: overlay %s", path)
		}
		zap.L().Info("loaded entity overlay", zap.String("entity", d.Slug))
	}
	return nil
}
