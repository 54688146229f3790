package taskparams

import (
	"fmt"

	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// Suffix returns the artifact name suffix for p. Identical params always yield
// the same suffix, so a rerun overwrites the previous partial output.
func Suffix(p models.Params) string {
	return fmt.Sprintf("algo-%s.epochs-%d.subwords-%d..%d.wordngram-%d.neg_sampling-%d",
		p.Algo, p.Epochs, p.SubwordsMin, p.SubwordsMax, p.WordNgram, p.NegSampling)
}
