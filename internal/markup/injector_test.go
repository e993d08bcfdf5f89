package markup

import (
	"testing"

	"github.com/user/alttext-service/internal/entity"
)

func TestRewriteTag(t *testing.T) {
	tests := []struct {
		name   string
		tag    string
		hasAlt bool
		alt    string
		want   string
	}{
		{name: "insert", tag: `<img src="a.jpg">`, alt: "Garden Guide", want: `<img src="a.jpg" alt="Garden Guide">`},
		{name: "insert self closing", tag: `<img src="a.jpg" />`, alt: "x", want: `<img src="a.jpg" alt="x" />`},
		{name: "insert self closing no space", tag: `<img src="a.jpg"/>`, alt: "x", want: `<img src="a.jpg" alt="x"/>`},
		{name: "replace double", tag: `<img alt="" src="a.jpg">`, hasAlt: true, alt: "x", want: `<img alt="x" src="a.jpg">`},
		{name: "replace single", tag: `<img src='a.jpg' alt=''>`, hasAlt: true, alt: "x", want: `<img src='a.jpg' alt="x">`},
		{name: "replace unquoted", tag: `<img src=a.jpg alt= class=big>`, hasAlt: true, alt: "x", want: `<img src=a.jpg alt="x">`},
		{name: "replace valueless", tag: `<img src="a.jpg" alt>`, hasAlt: true, alt: "x", want: `<img src="a.jpg" alt="x">`},
		{name: "replace uppercase", tag: `<IMG SRC="a.jpg" ALT="">`, hasAlt: true, alt: "x", want: `<IMG SRC="a.jpg" alt="x">`},
		{name: "alt text inside another value", tag: `<img data-x=" alt=" alt="" src="a">`, hasAlt: true, alt: "x", want: `<img data-x=" alt=" alt="x" src="a">`},
		{name: "slash ends unquoted value", tag: `<img src=a.jpg/>`, alt: "x", want: `<img src=a.jpg/ alt="x">`},
		{name: "slash after empty unquoted value", tag: `<img src= />`, alt: "x", want: `<img src= / alt="x">`},
		{name: "slash after valueless attribute", tag: `<img src="a.jpg" hidden/>`, alt: "x", want: `<img src="a.jpg" hidden alt="x"/>`},
		{name: "bare self closing", tag: `<img/>`, alt: "x", want: `<img alt="x"/>`},
		{name: "escaping", tag: `<img src="a.jpg">`, alt: `Tom & "Jerry" <3`, want: `<img src="a.jpg" alt="Tom &amp; &#34;Jerry&#34; &lt;3">`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RewriteTag(tt.tag, tt.hasAlt, tt.alt)
			if !ok {
				t.Fatalf("RewriteTag(%q) failed", tt.tag)
			}
			if got != tt.want {
				t.Fatalf("RewriteTag(%q) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestInjectAltsRepeatedIdenticalMarkup(t *testing.T) {
	doc := `<p><img src="a.jpg"></p><p><img src="a.jpg"></p>`
	images := ExtractImages(doc)
	out := InjectAlts(doc, images, map[string]string{"a.jpg": "Photo"})
	want := `<p><img src="a.jpg" alt="Photo"></p><p><img src="a.jpg" alt="Photo"></p>`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestInjectAltsSkipsMissesAndEmptyResults(t *testing.T) {
	doc := `<img src="a.jpg"><img src="b.jpg">`
	images := []entity.ImageReference{
		{SourceURL: "a.jpg", RawMatchedMarkup: `<img src="gone.jpg">`},
		{SourceURL: "b.jpg", RawMatchedMarkup: `<img src="b.jpg">`},
	}
	out := InjectAlts(doc, images, map[string]string{"a.jpg": "A", "b.jpg": ""})
	if out != doc {
		t.Fatalf("expected document untouched, got %q", out)
	}
}

func TestInjectAltsIsIdempotent(t *testing.T) {
	doc := `<div><img src="a.jpg"><img src="b.jpg" alt=""></div>`
	alts := map[string]string{"a.jpg": "First", "b.jpg": "Second"}
	once := InjectAlts(doc, ExtractImages(doc), alts)

	var pending []entity.ImageReference
	for _, img := range ExtractImages(once) {
		if img.NeedsAlt() {
			pending = append(pending, img)
		}
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending images after injection, got %d", len(pending))
	}
	if twice := InjectAlts(once, pending, alts); twice != once {
		t.Fatalf("second pass changed document: %q", twice)
	}
}

func TestInjectAltsPreservesSource(t *testing.T) {
	docs := []string{
		`<img src=a.jpg/>`,
		`<img src="a.jpg/" />`,
		`<IMG SRC='a.jpg/' ALT>`,
		"<img\nsrc=a.jpg/\n>",
	}
	for _, doc := range docs {
		images := ExtractImages(doc)
		if len(images) != 1 || images[0].SourceURL != "a.jpg/" {
			t.Fatalf("%q: unexpected extraction %+v", doc, images)
		}
		out := InjectAlts(doc, images, map[string]string{"a.jpg/": `New "A" & B`})
		got := ExtractImages(out)
		if len(got) != 1 {
			t.Fatalf("%q: expected one image after injection, got %d", doc, len(got))
		}
		if got[0].SourceURL != "a.jpg/" {
			t.Fatalf("%q: src changed to %q in %q", doc, got[0].SourceURL, out)
		}
		if got[0].CurrentAltText != `New "A" & B` {
			t.Fatalf("%q: alt %q in %q", doc, got[0].CurrentAltText, out)
		}
	}
}

func TestInjectAltsSkipsIdenticalMarkupInScript(t *testing.T) {
	doc := `<script>var tpl = '<img src="a.jpg">';</script><p><img src="a.jpg"></p>`
	images := ExtractImages(doc)
	if len(images) != 1 {
		t.Fatalf("expected one image outside the script, got %d", len(images))
	}
	out := InjectAlts(doc, images, map[string]string{"a.jpg": "Photo"})
	want := `<script>var tpl = '<img src="a.jpg">';</script><p><img src="a.jpg" alt="Photo"></p>`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}
