package infra

import (
	"errors"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	query := `--sql 0b9e8d3c-6f0e-4a55-9f7a-2a1d4c6e8b10
select 1;
`
	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if marker != "0b9e8d3c-6f0e-4a55-9f7a-2a1d4c6e8b10" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q, want select 1;", body)
	}
}

func TestExtractMarkerRejectsUnmarkedQuery(t *testing.T) {
	if _, _, err := extractMarker("select 1;"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("err = %v, want ErrMissingMarker", err)
	}
}
