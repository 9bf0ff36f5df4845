package criteria

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eargollo/ppfinder/internal/mods"
)

const validCriteria = `{
	"pp": {"min": 200, "max": 400},
	"stars": {"min": 0, "max": 20},
	"ar": {"min": 0, "max": 11},
	"cs": {"min": 0, "max": 11},
	"od": {"min": 0, "max": 11},
	"hp": {"min": 0, "max": 11},
	"duration": {"min": 0, "max": 600},
	"maxCombo": {"min": 0, "max": 5000},
	"mods": {"include": "HD", "exclude": "EZ"},
	"sort": {"id": 2, "desc": true}
}`

func request(criteria string, page int) []byte {
	return []byte(fmt.Sprintf(`{"criteria": %s, "page": %d}`, criteria, page))
}

func TestValidateAccepts(t *testing.T) {
	req, err := Validate(request(validCriteria, 3))
	require.NoError(t, err)
	require.NotNil(t, req.Criteria)
	assert.Equal(t, 3, req.Page)
	assert.Equal(t, Range{Min: 200, Max: 400}, req.Criteria.PP)
	assert.Equal(t, Sort{ID: 2, Desc: true}, req.Criteria.Sort)

	inc, exc, err := req.Criteria.Mods.Masks()
	require.NoError(t, err)
	assert.Equal(t, mods.Hidden, inc)
	assert.Equal(t, mods.Easy, exc)
}

func TestValidateKeepsNegativePage(t *testing.T) {
	req, err := Validate(request(validCriteria, -1))
	require.NoError(t, err)
	assert.Equal(t, -1, req.Page)
}

func TestValidateNullCriteria(t *testing.T) {
	req, err := Validate([]byte(`{"criteria": null}`))
	require.NoError(t, err)
	assert.Nil(t, req.Criteria)
	assert.Zero(t, req.Page)
}

func TestValidateRejects(t *testing.T) {
	replace := func(old, new string) string {
		require.Contains(t, validCriteria, old)
		return strings.Replace(validCriteria, old, new, 1)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte(`{`)},
		{"missing criteria", []byte(`{"page": 0}`)},
		{"fractional page", []byte(`{"criteria": null, "page": 1.5}`)},
		{"unknown field", []byte(`{"criteria": null, "extra": 1}`)},
		{"missing range", request(replace(`"pp": {"min": 200, "max": 400},`, ``), 0)},
		{"range without max", request(replace(`"pp": {"min": 200, "max": 400}`, `"pp": {"min": 200}`), 0)},
		{"string bound", request(replace(`"min": 200`, `"min": "200"`), 0)},
		{"negative bound", request(replace(`"min": 200`, `"min": -1`), 0)},
		{"ar min above ceiling", request(replace(`"ar": {"min": 0`, `"ar": {"min": 12`), 0)},
		{"fractional duration", request(replace(`"duration": {"min": 0`, `"duration": {"min": 0.5`), 0)},
		{"fractional combo", request(replace(`"max": 5000`, `"max": 5000.5`), 0)},
		{"mods not string", request(replace(`"include": "HD"`, `"include": ["HD"]`), 0)},
		{"odd mod string", request(replace(`"include": "HD"`, `"include": "HDH"`), 0)},
		{"unknown mod code", request(replace(`"exclude": "EZ"`, `"exclude": "ZZ"`), 0)},
		{"sort id too large", request(replace(`"id": 2`, `"id": 7`), 0)},
		{"sort id negative", request(replace(`"id": 2`, `"id": -1`), 0)},
		{"sort desc not bool", request(replace(`"desc": true`, `"desc": "yes"`), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.raw)
			require.ErrorIs(t, err, ErrInvalidCriteria)
		})
	}
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria([]byte(validCriteria))
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 0, Max: 600}, c.Duration)

	_, err = ParseCriteria([]byte(`null`))
	require.ErrorIs(t, err, ErrInvalidCriteria)
}

func TestAnyIsValid(t *testing.T) {
	raw, err := json.Marshal(Any())
	require.NoError(t, err)
	_, err = ParseCriteria(raw)
	require.NoError(t, err)
}
