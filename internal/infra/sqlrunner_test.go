package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		marker  string
		body    string
		wantErr bool
	}{
		{
			name:   "valid",
			query:  "\n--sql 0f6c8d1e-3b7a-4c52-9e1f-2a8b7c6d5e4f\nSELECT 1",
			marker: "0f6c8d1e-3b7a-4c52-9e1f-2a8b7c6d5e4f",
			body:   "SELECT 1",
		},
		{name: "missing marker", query: "SELECT 1", wantErr: true},
		{name: "uppercase uuid rejected", query: "--sql 0F6C8D1E-3B7A-4C52-9E1F-2A8B7C6D5E4F\nSELECT 1", wantErr: true},
		{name: "empty", query: "   ", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			marker, body, err := extractMarker(tc.query)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.query)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractMarker returned error: %v", err)
			}
			if marker != tc.marker || body != tc.body {
				t.Fatalf("got (%q, %q), want (%q, %q)", marker, body, tc.marker, tc.body)
			}
		})
	}
}

func TestSQLRunnerRejectsUnmarkedStatements(t *testing.T) {
	r := NewSQLRunner(nil, zerolog.Nop())
	if _, err := r.Exec(context.Background(), "DELETE FROM reading_jobs"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Exec err = %v, want ErrMissingMarker", err)
	}
	if err := r.QueryRow(context.Background(), "SELECT 1").Scan(); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("QueryRow err = %v, want ErrMissingMarker", err)
	}
	if _, err := r.Query(context.Background(), "SELECT 1"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Query err = %v, want ErrMissingMarker", err)
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(pgx.ErrNoRows) {
		t.Fatal("expected pgx.ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Fatal("unexpected match")
	}
}
