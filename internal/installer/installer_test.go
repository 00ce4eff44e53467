// Copyright 2025 James Ross
package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incontrol/trust-kernel/internal/manifest"
	"github.com/incontrol/trust-kernel/internal/packager"
)

func testPackage(t *testing.T) *packager.Package {
	t.Helper()
	m := &manifest.Manifest{
		ID:          "com.x.greeter",
		Version:     "1.0.0",
		Name:        "Greeter",
		Author:      "X",
		Description: "says hello",
		RiskLevel:   manifest.RiskReadOnly,
		Capabilities: []manifest.Capability{
			{ToolID: "greet", Name: "Greet", Description: "says hi"},
		},
	}
	raw, err := packager.Build(packager.BuildInput{Manifest: m, License: []byte("MIT")})
	require.NoError(t, err)
	pkg, err := packager.Open(raw)
	require.NoError(t, err)
	return pkg
}

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	assert.Empty(t, r.Entries())
}

func TestInstallThenFind(t *testing.T) {
	dir := t.TempDir()
	r, err := Load(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)

	entry, err := Install(r, testPackage(t), dir)
	require.NoError(t, err)
	assert.Equal(t, "com.x.greeter", entry.PluginID)

	found, ok := r.Find("com.x.greeter")
	require.True(t, ok)
	assert.Equal(t, entry.InstallPath, found.InstallPath)

	reloaded, err := Load(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)
	_, ok = reloaded.Find("com.x.greeter")
	assert.True(t, ok)
}

func TestLoadDropsEntriesWhoseInstallPathIsGone(t *testing.T) {
	dir := t.TempDir()
	r, err := Load(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)

	_, err = Install(r, testPackage(t), dir)
	require.NoError(t, err)

	entry, _ := r.Find("com.x.greeter")
	require.NoError(t, os.RemoveAll(entry.InstallPath))

	reloaded, err := Load(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)
	assert.Empty(t, reloaded.Entries())
}

func TestUninstallRemovesFilesAndEntry(t *testing.T) {
	dir := t.TempDir()
	r, err := Load(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)

	entry, err := Install(r, testPackage(t), dir)
	require.NoError(t, err)

	require.NoError(t, Uninstall(r, "com.x.greeter"))
	_, ok := r.Find("com.x.greeter")
	assert.False(t, ok)
	_, err = os.Stat(entry.InstallPath)
	assert.True(t, os.IsNotExist(err))
}

func TestInstallRejectsPathTraversalEntry(t *testing.T) {
	dir := t.TempDir()
	r, err := Load(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)

	pkg := testPackage(t)
	pkg.Files["../../../../etc/cron.d/evil"] = []byte("* * * * * root touch /tmp/pwned")

	_, err = Install(r, pkg, dir)
	assert.ErrorContains(t, err, "escapes install path")
}

func TestUninstallUnknownPluginIsNoop(t *testing.T) {
	dir := t.TempDir()
	r, err := Load(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)
	assert.NoError(t, Uninstall(r, "not.installed"))
}
