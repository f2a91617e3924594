package diorama

import "testing"

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"after-drag", "after-drag"},
		{"frame.01", "frame.01"},
		{"has spaces", "has_spaces"},
		{"path/to/thing", "path_to_thing"},
		{"", "unlabeled"},
		{"   ", "unlabeled"},
	}
	for _, tt := range tests {
		if got := sanitizeLabel(tt.in); got != tt.want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScreenshotQueue(t *testing.T) {
	e := newTestEditor(t)
	e.Screenshot("a")
	e.Screenshot("b")
	if len(e.screenshotQueue) != 2 || e.screenshotQueue[1] != "b" {
		t.Errorf("queue = %v", e.screenshotQueue)
	}
}

func TestStraightAlpha(t *testing.T) {
	// One opaque pixel and one half-transparent premultiplied pixel.
	img := straightAlpha([]byte{10, 20, 30, 255, 50, 0, 100, 128}, 2, 1)
	if got := img.Pix[:4]; got[0] != 10 || got[3] != 255 {
		t.Errorf("opaque pixel = %v", got)
	}
	if got := img.Pix[4:8]; got[0] != 99 || got[2] != 199 || got[3] != 128 {
		t.Errorf("translucent pixel = %v", got)
	}
}
