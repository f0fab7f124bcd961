package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/build"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
)

var benchVocabulary = []string{"distributed", "search", "engine", "ranking", "index", "query", "shard", "cache"}

func benchIndex(b *testing.B, docs int) *Retrieval {
	b.Helper()
	bl := build.New(build.Options{WriterOptions: postings.DefaultWriterOptions()})
	for i := range docs {
		terms := make([]string, 0, 12)
		for j := range 12 {
			terms = append(terms, benchVocabulary[(i*7+j*3)%len(benchVocabulary)])
		}
		if err := bl.Add(build.Document{ID: int64(i), Name: fmt.Sprintf("doc-%d", i), Terms: terms}); err != nil {
			b.Fatal(err)
		}
	}
	dir := b.TempDir()
	if _, err := bl.Write(context.Background(), dir); err != nil {
		b.Fatal(err)
	}
	r, err := Open(dir, config.Default().Retrieval)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { r.Close() })
	return r
}

func BenchmarkRunQuery(b *testing.B) {
	r := benchIndex(b, 10000)
	queries := map[string]*query.Node{
		"single":  query.New("combine", nil, query.Text("search")),
		"combine": query.New("combine", nil, query.Text("distributed"), query.Text("search"), query.Text("engine")),
		"od":      query.New("combine", nil, query.New("od", query.Params{query.DefaultKey: "1"}, query.Text("search"), query.Text("engine"))),
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := r.RunQuery(context.Background(), q, Options{Requested: 10, SkipNames: true}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRunQueryParallel(b *testing.B) {
	r := benchIndex(b, 10000)
	q := query.New("combine", nil, query.Text("ranking"), query.Text("shard"))
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := r.RunQuery(context.Background(), q, Options{Requested: 10}); err != nil {
				b.Fatal(err)
			}
		}
	})
}
