package iterator

// Null stands in for a key absent from the index. It has no candidates and
// answers every capability with a zero value.
type Null struct{}

func NewNull() *Null { return &Null{} }

func (*Null) CurrentCandidate() int64             { return Done }
func (*Null) IsDone() bool                        { return true }
func (*Null) MoveTo(int64) (bool, error)          { return false, nil }
func (*Null) MovePast(int64) error                { return nil }
func (*Null) HasMatch(int64) bool                 { return false }
func (*Null) HasAllCandidates() bool              { return false }
func (*Null) TotalEntries() int64                 { return 0 }
func (*Null) Reset() error                        { return nil }
func (*Null) Count(*ScoringContext) int           { return 0 }
func (*Null) Extents(*ScoringContext) ExtentArray { return nil }
func (*Null) Score(*ScoringContext) float64       { return 0 }
func (*Null) MaximumScore() float64               { return 0 }
func (*Null) MinimumScore() float64               { return 0 }
func (*Null) Indicator(*ScoringContext) bool      { return false }
func (*Null) Data(*ScoringContext) any            { return nil }
func (*Null) NodeStatistics() NodeStatistics      { return NodeStatistics{} }

var (
	_ ExtentIterator    = (*Null)(nil)
	_ ScoreIterator     = (*Null)(nil)
	_ IndicatorIterator = (*Null)(nil)
	_ DataIterator      = (*Null)(nil)
	_ Statistics        = (*Null)(nil)
)
