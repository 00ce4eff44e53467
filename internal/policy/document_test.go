// Copyright 2025 James Ross
package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	src := []byte(`{
		// org policy
		"version": "1.0.0",
		"tools": {
			"deny": ["shell-*",],
		},
	}`)
	doc, err := ParseDocument(src)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Version)
	require.NotNil(t, doc.Tools)
	assert.Equal(t, []string{"shell-*"}, doc.Tools.Deny)
}

func TestStripJSONCIgnoresSlashesInsideStrings(t *testing.T) {
	src := []byte(`{"version": "1.0.0", "org_id": "https://example.com/org"}`)
	doc, err := ParseDocument(src)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/org", doc.OrgID)
}

func TestLoadDocumentFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	content := []byte("{\n  // comment\n  \"version\": \"1.0.0\",\n  \"locked\": true,\n}\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.True(t, doc.Locked)
}

func TestParseDocumentYAMLDecodesSections(t *testing.T) {
	src := []byte("version: \"1.0.0\"\nlocked: true\nplugins:\n  enabled: false\n  allow:\n    - my-plugin\n")
	doc, err := ParseDocumentYAML(src)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Version)
	assert.True(t, doc.Locked)
	require.NotNil(t, doc.Plugins)
	assert.Equal(t, []string{"my-plugin"}, doc.Plugins.Allow)
}

func TestLoadDocumentYAMLFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0.0\"\norg_id: acme\n"), 0o644))

	doc, err := LoadDocumentYAML(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", doc.OrgID)
}

func TestParseDocumentYAMLRejectsMalformedDocument(t *testing.T) {
	_, err := ParseDocumentYAML([]byte("version: [unterminated"))
	assert.Error(t, err)
}

func TestLoadDocumentMatchesPropertyNamesCaseInsensitively(t *testing.T) {
	src := []byte(`{"VERSION": "1.0.0", "LOCKED": true}`)
	doc, err := ParseDocument(src)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Version)
	assert.True(t, doc.Locked)
}
