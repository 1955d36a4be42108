package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSQLInlineQueriesCarryUniqueMarkers(t *testing.T) {
	l := newLinter()
	if err := l.lintPath(filepath.Join("..", "..", "sqlinline")); err != nil {
		t.Fatalf("lintPath: %v", err)
	}
	for _, v := range l.violations {
		t.Errorf("%s", v)
	}
	if len(l.seen) == 0 {
		t.Fatal("no queries found")
	}
}

func TestLinterReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	src := "package q\n\n" +
		"const A = `--sql 2b63fcfe-9750-4434-97d4-da6f379650fa\nselect 1;`\n" +
		"const B = `--sql 2b63fcfe-9750-4434-97d4-da6f379650fa\nselect 2;`\n" +
		"const C = `delete from reading_jobs;`\n" +
		"const D = \"not a query\"\n"
	if err := os.WriteFile(filepath.Join(dir, "q.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := newLinter()
	if err := l.lintPath(dir); err != nil {
		t.Fatalf("lintPath: %v", err)
	}
	if len(l.violations) != 2 {
		t.Fatalf("violations = %v, want 2", l.violations)
	}
	if l.violations[0].name != "B" || !strings.Contains(l.violations[0].message, "already used by A") {
		t.Fatalf("unexpected duplicate violation %v", l.violations[0])
	}
	if l.violations[1].name != "C" {
		t.Fatalf("unexpected missing marker violation %v", l.violations[1])
	}
}
