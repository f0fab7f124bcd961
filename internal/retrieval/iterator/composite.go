package iterator

import "fmt"

// matcher is the outer type's HasMatch, consulted by the shared movement
// code so that operators can narrow the match condition.
type matcher interface {
	HasMatch(id int64) bool
}

// composite holds children and the subset that drives candidate
// selection. Children that have a value for every document never drive
// unless nothing else can.
//
// Children may be shared with other parents in the same tree, so movement
// only ever pushes children forward to the requested id. No composite
// leapfrogs a child past a candidate another parent may still need.
type composite struct {
	children []Iterator
	drivers  []Iterator
	hasAll   bool
	self     matcher
}

func newComposite(children []Iterator) composite {
	c := composite{children: children}
	for _, ch := range children {
		if !ch.HasAllCandidates() {
			c.drivers = append(c.drivers, ch)
		}
	}
	if len(c.drivers) == 0 {
		c.hasAll = len(children) > 0
		c.drivers = children
	}
	return c
}

func (c *composite) Children() []Iterator { return c.children }

func (c *composite) HasAllCandidates() bool { return c.hasAll }

func (c *composite) MoveTo(id int64) (bool, error) {
	for i, ch := range c.children {
		if _, err := ch.MoveTo(id); err != nil {
			return false, fmt.Errorf("child %d: %w", i, err)
		}
	}
	return c.self.HasMatch(id), nil
}

func (c *composite) MovePast(id int64) error {
	for i, ch := range c.children {
		if err := ch.MovePast(id); err != nil {
			return fmt.Errorf("child %d: %w", i, err)
		}
	}
	return nil
}

func (c *composite) Reset() error {
	for _, ch := range c.children {
		if err := ch.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// conjunction matches documents where every driver matches.
type conjunction struct {
	composite
}

func newConjunction(self matcher, children []Iterator) conjunction {
	c := conjunction{composite: newComposite(children)}
	c.self = self
	return c
}

// CurrentCandidate is the shared position of the drivers. While they
// disagree it reports one less than the furthest driver, so the next
// MovePast brings the laggards up to it.
func (c *conjunction) CurrentCandidate() int64 {
	if c.IsDone() {
		return Done
	}
	lo, hi := Done, int64(-1)
	for _, d := range c.drivers {
		cur := d.CurrentCandidate()
		lo = min(lo, cur)
		hi = max(hi, cur)
	}
	if lo == hi {
		return hi
	}
	return hi - 1
}

func (c *conjunction) IsDone() bool {
	if len(c.drivers) == 0 {
		return true
	}
	for _, d := range c.drivers {
		if d.IsDone() {
			return true
		}
	}
	return false
}

func (c *conjunction) HasMatch(id int64) bool {
	if len(c.drivers) == 0 {
		return false
	}
	for _, d := range c.drivers {
		if !d.HasMatch(id) {
			return false
		}
	}
	return true
}

func (c *conjunction) TotalEntries() int64 {
	total := int64(0)
	for i, d := range c.drivers {
		if n := d.TotalEntries(); i == 0 || n < total {
			total = n
		}
	}
	return total
}

// disjunction matches documents where any driver matches.
type disjunction struct {
	composite
}

func newDisjunction(self matcher, children []Iterator) disjunction {
	d := disjunction{composite: newComposite(children)}
	d.self = self
	return d
}

func (d *disjunction) CurrentCandidate() int64 {
	cand := Done
	for _, it := range d.drivers {
		if !it.IsDone() {
			cand = min(cand, it.CurrentCandidate())
		}
	}
	return cand
}

func (d *disjunction) IsDone() bool {
	for _, it := range d.drivers {
		if !it.IsDone() {
			return false
		}
	}
	return true
}

func (d *disjunction) HasMatch(id int64) bool {
	for _, it := range d.drivers {
		if it.HasMatch(id) {
			return true
		}
	}
	return false
}

func (d *disjunction) TotalEntries() int64 {
	var total int64
	for _, it := range d.drivers {
		total = max(total, it.TotalEntries())
	}
	return total
}

// indicatorOf reads an indicator child's value, or treats a plain child's
// match as true.
func indicatorOf(it Iterator, c *ScoringContext) bool {
	if ind, ok := it.(IndicatorIterator); ok {
		return it.HasMatch(c.Document) && ind.Indicator(c)
	}
	return it.HasMatch(c.Document)
}
