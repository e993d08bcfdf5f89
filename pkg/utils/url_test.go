package utils

import "testing"

func TestImageBasename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "a.jpg", want: "a"},
		{name: "absolute", in: "https://example.com/uploads/garden-bed.png", want: "garden-bed"},
		{name: "resized variant", in: "/wp/uploads/red_tulips-300x200.jpg", want: "red_tulips"},
		{name: "scaled with query", in: "/img/hero-scaled.webp?ver=3", want: "hero"},
		{name: "escaped", in: "/img/my%20photo.jpg", want: "my photo"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImageBasename(tt.in); got != tt.want {
				t.Fatalf("ImageBasename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalImageURL(t *testing.T) {
	got := CanonicalImageURL("https://example.com/u/photo-1024x768.jpg?v=2#x")
	if got != "https://example.com/u/photo.jpg" {
		t.Fatalf("unexpected canonical url %q", got)
	}
	if got := CanonicalImageURL("/u/photo.jpg"); got != "/u/photo.jpg" {
		t.Fatalf("unchanged url rewritten to %q", got)
	}
}

func TestHashURLStable(t *testing.T) {
	if HashURL("a") != HashURL("a") || HashURL("a") == HashURL("b") {
		t.Fatal("HashURL is not a stable discriminating hash")
	}
}
