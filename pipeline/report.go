package pipeline

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// WriteReport writes s to path as YAML
func WriteReport(path string, s *Summary) error {
	buf, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}
