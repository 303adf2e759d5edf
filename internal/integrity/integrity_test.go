package integrity

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajabi/dlengine/internal/model"
)

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestVerifySizeAndChecksumSucceed(t *testing.T) {
	content := []byte("the quick brown fox")
	path := writeTempFile(t, "file.bin", content)
	sum := sha256.Sum256(content)
	expected := hex.EncodeToString(sum[:])

	size := int64(len(content))
	result := Verify(model.DefaultIntegrityConfig(), Input{
		Path:              path,
		ExpectedSize:      &size,
		ExpectedChecksum:  expected,
		ChecksumAlgorithm: model.SHA256,
	})
	assert.True(t, result.OK)
	assert.Empty(t, result.Errors)
}

func TestVerifyChecksumMismatchFails(t *testing.T) {
	path := writeTempFile(t, "file.bin", []byte("actual content"))

	result := Verify(model.DefaultIntegrityConfig(), Input{
		Path:              path,
		ExpectedChecksum:  "deadbeef",
		ChecksumAlgorithm: model.SHA256,
	})
	assert.False(t, result.OK)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "checksum mismatch")
}

func TestVerifyChecksumIsCaseInsensitive(t *testing.T) {
	content := []byte("case insensitive check")
	path := writeTempFile(t, "file.bin", content)
	sum := sha256.Sum256(content)
	expected := hex.EncodeToString(sum[:])

	result := Verify(model.DefaultIntegrityConfig(), Input{
		Path:              path,
		ExpectedChecksum:  toUpper(expected),
		ChecksumAlgorithm: model.SHA256,
	})
	assert.True(t, result.OK)
}

func TestVerifySizeMismatchFails(t *testing.T) {
	path := writeTempFile(t, "file.bin", []byte("12345"))
	wrong := int64(999)

	cfg := model.IntegrityConfig{VerifyFileSize: true}
	result := Verify(cfg, Input{Path: path, ExpectedSize: &wrong})
	assert.False(t, result.OK)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "size mismatch")
}

func TestVerifyArchiveShapeAcceptsValidZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.apk")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("AndroidManifest.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<manifest/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	cfg := model.IntegrityConfig{VerifyArchiveStructure: true}
	result := Verify(cfg, Input{Path: path})
	assert.True(t, result.OK)
}

func TestVerifyArchiveShapeRejectsNonZip(t *testing.T) {
	path := writeTempFile(t, "app.apk", []byte("not a zip at all"))
	cfg := model.IntegrityConfig{VerifyArchiveStructure: true}
	result := Verify(cfg, Input{Path: path})
	assert.False(t, result.OK)
}

func TestVerifyUnsupportedChecksumAlgorithmIsPermanent(t *testing.T) {
	path := writeTempFile(t, "file.bin", []byte("payload"))

	cfg := model.IntegrityConfig{VerifyChecksum: true}
	result := Verify(cfg, Input{
		Path:              path,
		ExpectedChecksum:  "deadbeef",
		ChecksumAlgorithm: model.ChecksumAlgorithm("CRC32"),
	})
	assert.False(t, result.OK)
	assert.True(t, result.Permanent)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unsupported checksum algorithm")
}

func TestVerifySignatureMissingVerifierIsPermanent(t *testing.T) {
	path := writeTempFile(t, "file.bin", []byte("payload"))

	cfg := model.IntegrityConfig{VerifySignature: true}
	result := Verify(cfg, Input{Path: path})
	assert.False(t, result.OK)
	assert.True(t, result.Permanent)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no SignatureVerifier configured")
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) VerifySignature(path string) error { return f.err }

func TestVerifySignatureDelegatesToHostVerifier(t *testing.T) {
	path := writeTempFile(t, "file.bin", []byte("payload"))

	cfg := model.IntegrityConfig{VerifySignature: true}
	result := Verify(cfg, Input{Path: path, Verifier: &fakeVerifier{}})
	assert.True(t, result.OK)
	assert.False(t, result.Permanent)
}

func TestVerifySignatureDelegateFailureIsNotPermanent(t *testing.T) {
	path := writeTempFile(t, "file.bin", []byte("payload"))

	cfg := model.IntegrityConfig{VerifySignature: true}
	result := Verify(cfg, Input{Path: path, Verifier: &fakeVerifier{err: errors.New("signature mismatch")}})
	assert.False(t, result.OK)
	assert.False(t, result.Permanent)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "signature verification failed")
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
