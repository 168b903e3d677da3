package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, _ ...any) { r.msg = format }

func TestIOImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"os", true},
		{"net/http", true},
		{"path/filepath", true},
		{"github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"cloud.google.com/go/storage", true},
		{"dicompreset/internal/blob", true},
		{"dicompreset/internal/blob/core", true},
		{"dicompreset/internal/infra/blob/fs", true},
		{"dicompreset/internal/source", true},
		{"dicompreset/internal/extract", false},
		{"encoding/json", false},
		{"sort", false},
		{"path", false},
	}
	for _, c := range cases {
		if got := IOImportForbidden(c.in); got != c.want {
			t.Fatalf("IOImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInfraImportForbiddenPredicate(t *testing.T) {
	if !InfraImportForbidden("dicompreset/internal/infra/blob/s3") {
		t.Fatalf("expected infra driver to be forbidden")
	}
	if InfraImportForbidden("dicompreset/internal/blob") {
		t.Fatalf("expected blob facade to be allowed")
	}
}

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestAssertNoDirectImportsIgnoresTestsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}\n")
	writeGo(t, dir, "x_test.go", "package tmp\nimport \"os\"\nvar _ = os.Args\n")
	writeGo(t, dir, "notes.txt", "import \"os\"")
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeGo(t, sub, "y.go", "package sub\nimport \"os\"\nvar _ = os.Args\n")
	AssertNoDirectImports(t, dir, IOImportForbidden, "pure package")
}

func TestDirectImportViolationsReported(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "x.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"os\"\n)\nfunc X(){fmt.Println(os.Args)}\n")
	viols, err := directImportViolations(dir, IOImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "os (in x.go)") {
		t.Fatalf("unexpected violations: %v", viols)
	}
	rec := &recordingFatal{}
	failIfDirectViolations(rec, "pure", viols)
	if rec.msg == "" {
		t.Fatalf("expected fatal on violations")
	}
}

func TestTransitiveViolationsUseGoList(t *testing.T) {
	old := goListDeps
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nos\n\nnet/http\n"), nil
	}
	defer func() { goListDeps = old }()
	viols, _, err := transitiveDependencyViolations("./...", func(p string) bool { return p == "net/http" })
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	if len(viols) != 1 || viols[0] != "net/http" {
		t.Fatalf("unexpected violations: %v", viols)
	}
	rec := &recordingFatal{}
	failIfTransitiveViolations(rec, "x", viols)
	if rec.msg == "" {
		t.Fatalf("expected fatal on violations")
	}
	failIfTransitiveViolations(rec, "x", nil)
}
