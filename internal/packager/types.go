// Copyright 2025 James Ross
// Package packager reads and writes the .icplugin archive format:
// a ZIP container bounded by 50 MiB, required to contain manifest.json
// and LICENSE, rejected on any forbidden executable-extension entry.
package packager

import "github.com/incontrol/trust-kernel/internal/manifest"

// MaxPackageSize is the hard 50 MiB bound on a .icplugin archive.
const MaxPackageSize = 50 * 1024 * 1024

// forbiddenExtensions is the executable-extension blacklist; any archive
// entry matching one of these (case-insensitive) is rejected outright.
var forbiddenExtensions = []string{
	".exe", ".bat", ".cmd", ".ps1", ".vbs", ".js", ".msi", ".msp", ".com", ".scr", ".pif",
}

// requiredEntries must be present in every valid package.
var requiredEntries = []string{"manifest.json", "LICENSE"}

// Package is a parsed, validated .icplugin archive: its manifest plus the
// raw bytes of every other entry, addressable by archive-relative name.
type Package struct {
	Manifest    *manifest.Manifest
	Files       map[string][]byte
	ContentHash string // hex-encoded SHA-256 over the archive bytes
	Signed      bool
}

// BuildInput describes the source material for Build: a manifest plus the
// license text and any asset files to bundle alongside it.
type BuildInput struct {
	Manifest  *manifest.Manifest
	License   []byte
	Signature []byte // optional; presence alone does not imply verified
	Assets    map[string][]byte
}
