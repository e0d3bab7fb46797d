package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/glotfile/format"
)

func TestResolveCombination(t *testing.T) {
	tests := []struct {
		id   string
		want []format.Type
	}{
		{"pdf-video-image-zip", []format.Type{format.PDF, format.MP4, format.Image, format.ZIP}},
		{"PDF-ZIP", []format.Type{format.PDF, format.ZIP}},
		{"image-mp4", []format.Type{format.Image, format.MP4}},
		{"png-jar", []format.Type{format.Image, format.ZIP}},
		{"html-mov-pdf", []format.Type{format.HTML, format.MP4, format.PDF}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ResolveCombination(tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("types (-want +got):\n%s", diff)
			}
		})
	}
}

// TestResolveCombination_WebClient pins the field order the web client
// posts for every combination it offers.
func TestResolveCombination_WebClient(t *testing.T) {
	tests := []struct {
		id   string
		want []format.Type
	}{
		{"pdf-image", []format.Type{format.PDF, format.Image}},
		{"image-zip", []format.Type{format.Image, format.ZIP}},
		{"pdf-zip", []format.Type{format.PDF, format.ZIP}},
		{"pdf-video-image-zip", []format.Type{format.PDF, format.MP4, format.Image, format.ZIP}},
		{"pdf-video-zip", []format.Type{format.PDF, format.MP4, format.ZIP}},
		{"zip-video-image", []format.Type{format.ZIP, format.MP4, format.Image}},
		{"image-video-pdf", []format.Type{format.Image, format.MP4, format.PDF}},
		{"html-pdf", []format.Type{format.PDF, format.HTML}},
		{"pdf-image-video-zip-html", []format.Type{format.PDF, format.Image, format.MP4, format.ZIP, format.HTML}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := ResolveCombination(tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("types (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveCombination_Rejects(t *testing.T) {
	for _, id := range []string{"", "pdf", "pdf-gif", "pdf-pdf", "png-jpg", "pdf-zip-mp4-image-html-pdf"} {
		if _, err := ResolveCombination(id); !errors.Is(err, format.ErrInvalidInput) {
			t.Errorf("%q: got %v, want ErrInvalidInput", id, err)
		}
	}
}

func TestCombinations_Copy(t *testing.T) {
	a := Combinations()
	a[0].Types[0] = format.HTML
	if Combinations()[0].Types[0] != format.PDF {
		t.Fatal("catalogue must not be mutable through Combinations")
	}
	seen := map[string]bool{}
	for _, c := range a {
		if seen[c.ID] {
			t.Fatalf("duplicate id %s", c.ID)
		}
		seen[c.ID] = true
		got, err := ResolveCombination(c.ID)
		if err != nil || len(got) != len(c.Types) {
			t.Fatalf("%s: %v", c.ID, err)
		}
	}
}
