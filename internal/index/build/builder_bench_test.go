package build

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
)

var benchTerms = []string{"search", "engine", "with", "distributed", "indexing", "and", "query", "processing"}

func BenchmarkBuilderAdd(b *testing.B) {
	bl := New(Options{WriterOptions: postings.DefaultWriterOptions()})
	b.ReportAllocs()
	var id int64
	for b.Loop() {
		id++
		if err := bl.Add(Document{ID: id, Name: fmt.Sprintf("doc-%d", id), Terms: benchTerms}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuilderWrite(b *testing.B) {
	for _, size := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				bl := New(Options{WriterOptions: postings.DefaultWriterOptions()})
				for i := range size {
					if err := bl.Add(Document{ID: int64(i), Name: fmt.Sprintf("doc-%d", i), Terms: benchTerms}); err != nil {
						b.Fatal(err)
					}
				}
				if _, err := bl.Write(context.Background(), b.TempDir()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
