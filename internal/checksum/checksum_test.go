package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/core-unit-bioinformatics/templsync/internal/syncerr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "LICENSE")
	writeFile(t, path, "license text")

	sum1, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum1) != 32 {
		t.Errorf("digest length = %d, want 32 hex chars", len(sum1))
	}

	// Same content, same digest.
	sum2, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum1 != sum2 {
		t.Errorf("digest not stable: %s != %s", sum1, sum2)
	}

	// Changed content, changed digest.
	writeFile(t, path, "license text v2")
	sum3, err := File(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum1 == sum3 {
		t.Error("digest did not change with content")
	}
}

func TestFile_Missing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCompare(t *testing.T) {
	tmpDir := t.TempDir()
	local := filepath.Join(tmpDir, "local.md")
	ref := filepath.Join(tmpDir, "ref.md")

	writeFile(t, local, "same")
	writeFile(t, ref, "same")

	result, sums, err := Compare(local, ref)
	if err != nil {
		t.Fatal(err)
	}
	if result != Identical {
		t.Errorf("result = %q, want %q", result, Identical)
	}
	if sums.Local != sums.Ref || sums.Local == "" {
		t.Errorf("identical files must report equal digests, got %+v", sums)
	}

	writeFile(t, local, "drifted")
	result, sums, err = Compare(local, ref)
	if err != nil {
		t.Fatal(err)
	}
	if result != Differs {
		t.Errorf("result = %q, want %q", result, Differs)
	}
	if sums.Local == sums.Ref {
		t.Error("differing files must report differing digests")
	}
}

func TestCompare_LocallyMissing(t *testing.T) {
	tmpDir := t.TempDir()
	ref := filepath.Join(tmpDir, "ref.md")
	writeFile(t, ref, "reference only")

	result, sums, err := Compare(filepath.Join(tmpDir, "absent.md"), ref)
	if err != nil {
		t.Fatal(err)
	}
	if result != LocallyMissing {
		t.Errorf("result = %q, want %q", result, LocallyMissing)
	}
	if sums.Local != "" {
		t.Errorf("missing local file must leave Local empty, got %q", sums.Local)
	}
	if sums.Ref == "" {
		t.Error("reference digest must still be reported")
	}
}

func TestCompare_ReferenceMissingIsError(t *testing.T) {
	tmpDir := t.TempDir()
	local := filepath.Join(tmpDir, "local.md")
	writeFile(t, local, "exists")

	_, _, err := Compare(local, filepath.Join(tmpDir, "no-such-ref.md"))
	if err == nil {
		t.Fatal("expected error when reference copy is missing")
	}
	if !syncerr.IsKind(err, syncerr.KindIO) {
		t.Errorf("error kind = %q, want %q", syncerr.KindOf(err), syncerr.KindIO)
	}
}
