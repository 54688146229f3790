package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params is the validated parameter set of one training job.
// Field order matches sorted JSON key order so journal lines are stable.
type Params struct {
	Algo        string `json:"algo"`
	Epochs      int    `json:"epochs"`
	NegSampling int    `json:"neg_sampling"`
	SubwordsMax int    `json:"subwords_max"`
	SubwordsMin int    `json:"subwords_min"`
	WordNgram   int    `json:"wordngram"`
}

// UnmarshalJSON accepts numeric fields as JSON numbers or as numeric
// strings. Older journals stored every value as a string.
func (p *Params) UnmarshalJSON(b []byte) error {
	var raw struct {
		Algo        string  `json:"algo"`
		Epochs      flexInt `json:"epochs"`
		NegSampling flexInt `json:"neg_sampling"`
		SubwordsMax flexInt `json:"subwords_max"`
		SubwordsMin flexInt `json:"subwords_min"`
		WordNgram   flexInt `json:"wordngram"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Params{
		Algo:        raw.Algo,
		Epochs:      int(raw.Epochs),
		NegSampling: int(raw.NegSampling),
		SubwordsMax: int(raw.SubwordsMax),
		SubwordsMin: int(raw.SubwordsMin),
		WordNgram:   int(raw.WordNgram),
	}
	return nil
}

type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		if val != float64(int(val)) {
			return fmt.Errorf("invalid integer %s", string(b))
		}
		*n = flexInt(val)
		return nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", val, err)
		}
		*n = flexInt(i)
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("invalid integer %s", string(b))
	}
}
