// Copyright 2025 James Ross
package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYAMLRoundTrip(t *testing.T) {
	m := validManifest()
	raw, err := SerializeYAML(m)
	require.NoError(t, err)

	parsed, err := ParseYAML(raw)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestParseYAMLRejectsInvariantViolation(t *testing.T) {
	m := validManifest()
	m.RiskLevel = RiskSystemAdjacent
	raw, err := SerializeYAML(m)
	require.NoError(t, err)

	_, err = ParseYAML(raw)
	assert.Error(t, err)
}

func TestParseYAMLRejectsMalformedDocument(t *testing.T) {
	_, err := ParseYAML([]byte("id: [unterminated"))
	assert.Error(t, err)
}
