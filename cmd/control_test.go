package cmd

import (
	"testing"
	"time"
)

func TestParseSeekOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30", 30 * time.Second, false},
		{"+5", 5 * time.Second, false},
		{"-10", -10 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"ten", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSeekOffset(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSeekOffset(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSeekOffset(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
