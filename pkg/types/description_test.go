// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptionAcceptsLooseScalars(t *testing.T) {
	raw := `{
		"architecture": {"building_type": "residential", "floors_visible": 4, "facade_colors": ["white", 2]},
		"distinctive_features": {"gate": true},
		"visible_text": {"condo_name": "Residencial Bela Vista", "street_signs": ["Rua Augusta", null], "businesses": ["none"]}
	}`

	var d Description
	require.NoError(t, json.Unmarshal([]byte(raw), &d))

	assert.Equal(t, Text("4"), d.Architecture.FloorsVisible)
	assert.Equal(t, []Text{"white", "2"}, d.Architecture.FacadeColors)
	assert.Equal(t, Text("true"), d.DistinctiveFeatures.Gate)
	assert.Equal(t, []string{"Residencial Bela Vista", "Rua Augusta"}, d.TextHints())
}

func TestTextRejectsObjects(t *testing.T) {
	var tx Text
	assert.Error(t, json.Unmarshal([]byte(`{"a": 1}`), &tx))
}
