// Package criteria defines and validates search requests.
package criteria

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/eargollo/ppfinder/internal/mods"
)

// ErrInvalidCriteria wraps every validation failure.
var ErrInvalidCriteria = errors.New("invalid search criteria")

// SortKeys names the sortable expressions; Sort.ID indexes into it.
var SortKeys = []string{
	"pp",
	"stars",
	"pp/stars",
	"maxCombo",
	"pp/maxCombo",
	"duration",
	"pp/duration",
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Mods holds concatenated 2-letter mod codes, e.g. "HDHR".
type Mods struct {
	Include string `json:"include"`
	Exclude string `json:"exclude"`
}

// Masks parses both strings into bitmasks.
func (m Mods) Masks() (include, exclude mods.Mask, err error) {
	if include, err = mods.Parse(m.Include); err != nil {
		return 0, 0, fmt.Errorf("include: %w", err)
	}
	if exclude, err = mods.Parse(m.Exclude); err != nil {
		return 0, 0, fmt.Errorf("exclude: %w", err)
	}
	return include, exclude, nil
}

// Sort selects the ordering of results.
type Sort struct {
	ID   int  `json:"id"`
	Desc bool `json:"desc"`
}

// Criteria is the filter part of a search.
type Criteria struct {
	PP       Range `json:"pp"`
	Stars    Range `json:"stars"`
	AR       Range `json:"ar"`
	CS       Range `json:"cs"`
	OD       Range `json:"od"`
	HP       Range `json:"hp"`
	Duration Range `json:"duration"`
	MaxCombo Range `json:"maxCombo"`
	Mods     Mods  `json:"mods"`
	Sort     Sort  `json:"sort"`
}

// Request is a search call: criteria (possibly null) and a page number.
type Request struct {
	Criteria *Criteria `json:"criteria"`
	Page     int       `json:"page"`
}

// Any returns criteria matching every indexed row, sorted by pp descending.
func Any() *Criteria {
	wide := Range{Min: 0, Max: math.MaxInt32}
	return &Criteria{
		PP: wide, Stars: wide, AR: wide, CS: wide, OD: wide, HP: wide,
		Duration: wide, MaxCombo: wide,
		Sort: Sort{ID: 0, Desc: true},
	}
}

// Validate checks a raw search request and decodes it.
func Validate(raw []byte) (*Request, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	rs, err := requestSchema()
	if err != nil {
		return nil, err
	}
	if err := rs.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	if req.Criteria != nil {
		if err := checkMods(req.Criteria); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

// ParseCriteria checks raw criteria (without the request envelope) and
// decodes them.
func ParseCriteria(raw []byte) (*Criteria, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateValue(v); err != nil {
		return nil, err
	}
	var c Criteria
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	if err := checkMods(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateValue checks a decoded JSON value (maps, slices, float64) against
// the criteria schema.
func ValidateValue(v any) error {
	rs, err := criteriaSchema()
	if err != nil {
		return err
	}
	if err := rs.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	return nil
}

func decode(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}
	return v, nil
}

func checkMods(c *Criteria) error {
	if _, _, err := c.Mods.Masks(); err != nil {
		return fmt.Errorf("%w: mods: %v", ErrInvalidCriteria, err)
	}
	return nil
}

var (
	criteriaSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
		return resolve(CriteriaSchema())
	})
	requestSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
		return resolve(RequestSchema())
	})
)

func resolve(s *jsonschema.Schema) (*jsonschema.Resolved, error) {
	rs, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolve criteria schema: %w", err)
	}
	return rs, nil
}
