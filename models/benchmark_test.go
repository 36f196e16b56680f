package models

import (
	"os"
	"testing"

	"github.com/nvr-ai/go-detcfg/config"
)

// BenchmarkBuild_Canonical interprets the stock document end to end,
// parse included. This is the cost of one validate call.
func BenchmarkBuild_Canonical(b *testing.B) {
	data, err := os.ReadFile("testdata/yolov3_r34_voc.yml")
	if err != nil {
		b.Fatalf("read document: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		tree, err := config.Parse(data, config.FormatYAML)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Build(tree); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBuild_SectionsOnly interprets a pre-parsed document, which
// isolates interpretation from parsing.
func BenchmarkBuild_SectionsOnly(b *testing.B) {
	data, err := os.ReadFile("testdata/yolov3_r34_voc_full.yml")
	if err != nil {
		b.Fatalf("read document: %v", err)
	}
	tree, err := config.Parse(data, config.FormatYAML)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := Build(tree); err != nil {
			b.Fatal(err)
		}
	}
}
