package delivery

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	const size = 64

	tests := []struct {
		name    string
		header  string
		start   int64
		end     int64
		whole   bool // 期待整档下发 (nil, nil)
		wantErr bool
	}{
		{name: "no header", header: "", whole: true},
		{name: "unknown unit", header: "items=0-5", whole: true},
		{name: "closed range", header: "bytes=10-19", start: 10, end: 19},
		{name: "open ended", header: "bytes=10-", start: 10, end: 63},
		{name: "full range", header: "bytes=0-63", start: 0, end: 63},
		{name: "end clamped to size", header: "bytes=60-999", start: 60, end: 63},
		{name: "start at last byte", header: "bytes=63-", start: 63, end: 63},
		{name: "start beyond size", header: "bytes=100-", wantErr: true},
		{name: "start at size", header: "bytes=64-", wantErr: true},
		{name: "inverted range", header: "bytes=20-10", wantErr: true},
		{name: "suffix range unsupported", header: "bytes=-10", wantErr: true},
		{name: "multi range unsupported", header: "bytes=0-5,10-20", wantErr: true},
		{name: "empty spec", header: "bytes=", wantErr: true},
		{name: "garbage start", header: "bytes=abc-5", wantErr: true},
		{name: "garbage end", header: "bytes=5-xyz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := ParseRange(tt.header, size)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsatisfiable) {
					t.Fatalf("expected ErrUnsatisfiable, got rng=%+v err=%v", rng, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.whole {
				if rng != nil {
					t.Fatalf("expected whole-object download, got %+v", rng)
				}
				return
			}
			if rng == nil {
				t.Fatal("expected a range, got nil")
			}
			if rng.Start != tt.start || rng.End != tt.end || rng.Size != size {
				t.Fatalf("got %+v, want start=%d end=%d size=%d", rng, tt.start, tt.end, size)
			}
		})
	}
}

func TestByteRangeHeaders(t *testing.T) {
	rng := ByteRange{Start: 10, End: 19, Size: 64}
	if got := rng.Length(); got != 10 {
		t.Fatalf("length: got %d, want 10", got)
	}
	if got := rng.ContentRange(); got != "bytes 10-19/64" {
		t.Fatalf("content range: got %q", got)
	}
	if got := UnsatisfiableRange(64); got != "bytes */64" {
		t.Fatalf("unsatisfiable range: got %q", got)
	}
}
