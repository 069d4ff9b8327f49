package mpris

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestTrackPath(t *testing.T) {
	tests := []struct {
		id   string
		want dbus.ObjectPath
	}{
		{"", noTrack},
		{"123", "/org/tgplay/track/t123"},
		{"abc_DEF", "/org/tgplay/track/tabc_DEF"},
		{"a-b/c.d", "/org/tgplay/track/ta_b_c_d"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := trackPath(tt.id)
			if got != tt.want {
				t.Errorf("trackPath(%q) = %q, want %q", tt.id, got, tt.want)
			}
			if !got.IsValid() {
				t.Errorf("trackPath(%q) = %q is not a valid object path", tt.id, got)
			}
		})
	}
}
