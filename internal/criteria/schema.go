package criteria

import "github.com/google/jsonschema-go/jsonschema"

// Ceilings of each range's lower bound.
const (
	maxPP      = 1e5
	maxStat    = 11
	maxStars   = 20
	maxSeconds = 1e6
	maxCombo   = 1e6
)

// modCodes matches zero or more 2-letter codes; unknown codes are rejected
// after decoding.
const modCodes = `^([A-Za-z]{2})*$`

func ptr[T any](v T) *T { return &v }

// closed forbids properties not listed in Properties. Schemas must form a
// tree, so every use gets its own instance.
func closed() *jsonschema.Schema { return &jsonschema.Schema{Not: &jsonschema.Schema{}} }

func rangeSchema(typ string, ceiling float64) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"min": {Type: typ, Minimum: ptr(0.0), Maximum: ptr(ceiling)},
			"max": {Type: typ, Minimum: ptr(0.0)},
		},
		Required:             []string{"min", "max"},
		AdditionalProperties: closed(),
	}
}

// CriteriaSchema returns the JSON schema of Criteria.
func CriteriaSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"pp":       rangeSchema("number", maxPP),
			"stars":    rangeSchema("number", maxStars),
			"ar":       rangeSchema("number", maxStat),
			"cs":       rangeSchema("number", maxStat),
			"od":       rangeSchema("number", maxStat),
			"hp":       rangeSchema("number", maxStat),
			"duration": rangeSchema("integer", maxSeconds),
			"maxCombo": rangeSchema("integer", maxCombo),
			"mods": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"include": {Type: "string", Pattern: modCodes},
					"exclude": {Type: "string", Pattern: modCodes},
				},
				Required:             []string{"include", "exclude"},
				AdditionalProperties: closed(),
			},
			"sort": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id":   {Type: "integer", Minimum: ptr(0.0), Maximum: ptr(float64(len(SortKeys) - 1))},
					"desc": {Type: "boolean"},
				},
				Required:             []string{"id", "desc"},
				AdditionalProperties: closed(),
			},
		},
		Required:             []string{"pp", "stars", "ar", "cs", "od", "hp", "duration", "maxCombo", "mods", "sort"},
		AdditionalProperties: closed(),
	}
}

// RequestSchema returns the JSON schema of Request. Criteria may be null.
// Any integer page is accepted; the searcher clamps it.
func RequestSchema() *jsonschema.Schema {
	c := CriteriaSchema()
	c.Type = ""
	c.Types = []string{"object", "null"}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"criteria": c,
			"page":     {Type: "integer"},
		},
		Required:             []string{"criteria"},
		AdditionalProperties: closed(),
	}
}
