package ranker

import "container/heap"

// better orders results: higher score first, then lower shard, then lower
// document id.
func better(a, b ScoredDocument) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Shard != b.Shard {
		return a.Shard < b.Shard
	}
	return a.Document < b.Document
}

// TopK keeps the k best results offered to it.
type TopK struct {
	k int
	h scoredHeap
}

func NewTopK(k int) *TopK {
	return &TopK{k: k, h: make(scoredHeap, 0, min(k, 1024)+1)}
}

func (t *TopK) Len() int { return t.h.Len() }

// Offer adds d, evicting the worst result once more than k are held.
func (t *TopK) Offer(d ScoredDocument) {
	if t.k <= 0 {
		return
	}
	if t.h.Len() == t.k && !better(d, t.h[0]) {
		return
	}
	heap.Push(&t.h, d)
	if t.h.Len() > t.k {
		heap.Pop(&t.h)
	}
}

// Sorted drains the container into rank order and numbers the ranks.
func (t *TopK) Sorted() []ScoredDocument {
	out := make([]ScoredDocument, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(ScoredDocument)
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Merge combines ranked lists into one list of at most k results.
func Merge(lists [][]ScoredDocument, k int) []ScoredDocument {
	top := NewTopK(k)
	for _, list := range lists {
		for _, d := range list {
			top.Offer(d)
		}
	}
	return top.Sorted()
}

// scoredHeap is a min-heap with the worst result on top.
type scoredHeap []ScoredDocument

func (h scoredHeap) Len() int { return len(h) }

func (h scoredHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x any) {
	*h = append(*h, x.(ScoredDocument))
}

func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
