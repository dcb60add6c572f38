package cli

import (
	"strings"
	"testing"

	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/palette"
)

func TestParsePageSize(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{in: "512x256", w: 512, h: 256},
		{in: "1024", w: 1024, h: 1024},
		{in: "64X64", w: 64, h: 64},
		{in: "axb", wantErr: true},
		{in: "0x64", wantErr: true},
		{in: "64x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := parsePageSize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parsePageSize(%q) succeeded", tt.in)
				}
				if errors.GetCode(err) == "" {
					t.Errorf("error %v carries no code", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if w != tt.w || h != tt.h {
				t.Errorf("got %dx%d, want %dx%d", w, h, tt.w, tt.h)
			}
		})
	}
}

func TestStatsTable(t *testing.T) {
	st := palette.Stats{
		Groups: []palette.GroupStats{
			{Name: "town", Pages: 2, Packed: 7, Omitted: map[string]int{"size": 1, "solitary": 2}, PagePixels: 100, UsedPixels: 50},
		},
		Total: palette.GroupStats{Name: "total", Pages: 2, Packed: 7, PagePixels: 100, UsedPixels: 50},
	}
	out := statsTable(st)
	for _, want := range []string{"Group", "town", "total", "50.0%", "size 1, solitary 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
}

func TestOmittedCount(t *testing.T) {
	if got := omittedCount(map[string]int{"a": 2, "b": 3}); got != 5 {
		t.Errorf("omittedCount = %d, want 5", got)
	}
	if got := omittedCount(nil); got != 0 {
		t.Errorf("omittedCount(nil) = %d", got)
	}
}
