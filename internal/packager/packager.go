// Copyright 2025 James Ross
package packager

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	kflate "github.com/klauspost/compress/flate"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
	"github.com/incontrol/trust-kernel/internal/manifest"
)

// registerFastFlate swaps zw's DEFLATE implementation for
// klauspost/compress's higher-throughput one; same container format, just a
// faster encoder. It registers on the writer, not through the package-level
// zip.RegisterCompressor, which already holds a Deflate compressor and
// panics on a second registration.
func registerFastFlate(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(w, kflate.DefaultCompression)
	})
}

// Open validates and parses a .icplugin archive from raw bytes: size
// bound, required entries, forbidden-extension rejection, manifest
// validation, and content hash computation.
func Open(raw []byte) (*Package, error) {
	if len(raw) > MaxPackageSize {
		return nil, kernelerrors.NewPackageInvalidError("package exceeds 50 MiB bound",
			fmt.Sprintf("size=%d max=%d", len(raw), MaxPackageSize))
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, kernelerrors.NewPackageInvalidError("package is not a valid ZIP archive", err.Error())
	}

	files := make(map[string][]byte, len(zr.File))
	var reasons []string
	for _, f := range zr.File {
		name := f.Name
		if f.FileInfo().IsDir() {
			continue
		}
		if !isSafeEntryName(name) {
			reasons = append(reasons, fmt.Sprintf("unsafe entry path %q", name))
			continue
		}
		if ext := strings.ToLower(path.Ext(name)); containsExt(forbiddenExtensions, ext) {
			reasons = append(reasons, fmt.Sprintf("forbidden file type %q in entry %q", ext, name))
			continue
		}
		rc, err := f.Open()
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("entry %q could not be opened: %v", name, err))
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("entry %q could not be read: %v", name, err))
			continue
		}
		files[name] = content
	}
	if len(reasons) > 0 {
		return nil, kernelerrors.NewPackageInvalidError("package contains forbidden or unreadable entries", reasons...)
	}

	for _, required := range requiredEntries {
		if _, ok := files[required]; !ok {
			reasons = append(reasons, fmt.Sprintf("missing required entry %q", required))
		}
	}
	if len(reasons) > 0 {
		return nil, kernelerrors.NewPackageInvalidError("package is missing required entries", reasons...)
	}

	m, err := manifest.Parse(files["manifest.json"])
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	_, signed := files["SIGNATURE"]

	return &Package{
		Manifest:    m,
		Files:       files,
		ContentHash: hex.EncodeToString(sum[:]),
		Signed:      signed,
	}, nil
}

// Build serializes in into a .icplugin archive, enforcing the same
// required-entry and forbidden-extension invariants Open checks on read.
func Build(in BuildInput) ([]byte, error) {
	if err := manifest.Validate(in.Manifest); err != nil {
		return nil, err
	}
	if len(in.License) == 0 {
		return nil, kernelerrors.NewPackageInvalidError("package build requires a non-empty LICENSE")
	}

	manifestRaw, err := manifest.Serialize(in.Manifest)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	registerFastFlate(zw)

	if err := writeEntry(zw, "manifest.json", manifestRaw); err != nil {
		return nil, err
	}
	if err := writeEntry(zw, "LICENSE", in.License); err != nil {
		return nil, err
	}
	if len(in.Signature) > 0 {
		if err := writeEntry(zw, "SIGNATURE", in.Signature); err != nil {
			return nil, err
		}
	}
	for name, content := range in.Assets {
		entryName := path.Join("assets", name)
		if ext := strings.ToLower(path.Ext(entryName)); containsExt(forbiddenExtensions, ext) {
			return nil, kernelerrors.NewPackageInvalidError(fmt.Sprintf("asset %q has a forbidden extension %q", name, ext))
		}
		if err := writeEntry(zw, entryName, content); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	if buf.Len() > MaxPackageSize {
		return nil, kernelerrors.NewPackageInvalidError("built package exceeds 50 MiB bound")
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}

// VerifySignature reports whether pkg carries a SIGNATURE entry and, when
// publicKey and verify are both non-nil, whether it verifies against the
// manifest.json bytes. A package with no SIGNATURE entry is reported
// unsigned, not invalid; neither Open nor Build rejects unsigned packages,
// and policy plugin rules match on plugin id only, not on signing.
func VerifySignature(pkg *Package, publicKey []byte, verify func(sig, payload, key []byte) bool) (signed bool, verified bool) {
	sig, ok := pkg.Files["SIGNATURE"]
	if !ok {
		return false, false
	}
	if publicKey == nil || verify == nil {
		return true, false
	}
	return true, verify(sig, pkg.Files["manifest.json"], publicKey)
}

// isSafeEntryName rejects archive entry names that could escape an
// extraction directory (Zip-Slip): absolute paths, backslashes, and any
// "." or ".." path segment.
func isSafeEntryName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

func containsExt(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
