package model

import (
	"encoding/json"
	"sort"
	"time"
)

// CodeSet is an insertion-ordered set of codes. The zero value is empty and
// ready to use.
type CodeSet struct {
	order []string
	idx   map[string]struct{}
}

func NewCodeSet(codes ...string) *CodeSet {
	s := &CodeSet{}
	s.Add(codes...)
	return s
}

func (s *CodeSet) Has(code string) bool {
	if s == nil {
		return false
	}
	_, ok := s.idx[code]
	return ok
}

// Add inserts codes not already present and returns the ones that were new.
func (s *CodeSet) Add(codes ...string) []string {
	if s.idx == nil {
		s.idx = make(map[string]struct{}, len(codes))
	}
	var added []string
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := s.idx[c]; ok {
			continue
		}
		s.idx[c] = struct{}{}
		s.order = append(s.order, c)
		added = append(added, c)
	}
	return added
}

// Remove deletes code and reports whether it was present.
func (s *CodeSet) Remove(code string) bool {
	if !s.Has(code) {
		return false
	}
	delete(s.idx, code)
	for i, c := range s.order {
		if c == code {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *CodeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Codes returns a copy of the members in insertion order.
func (s *CodeSet) Codes() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Sorted returns the members in lexical order.
func (s *CodeSet) Sorted() []string {
	out := s.Codes()
	sort.Strings(out)
	return out
}

func (s *CodeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Codes())
}

func (s *CodeSet) UnmarshalJSON(b []byte) error {
	var codes []string
	if err := json.Unmarshal(b, &codes); err != nil {
		return err
	}
	*s = CodeSet{}
	s.Add(codes...)
	return nil
}

// CodePool is the mirror of the published code list, partitioned by tier.
// FetchedAt is persisted separately from the tiers.
type CodePool struct {
	Monthly   *CodeSet  `json:"monthly"`
	Yearly    *CodeSet  `json:"yearly"`
	FetchedAt time.Time `json:"-"`
}

func NewCodePool() *CodePool {
	return &CodePool{Monthly: NewCodeSet(), Yearly: NewCodeSet()}
}

// Tier returns the set backing t, creating it when missing.
func (p *CodePool) Tier(t Tier) *CodeSet {
	switch t {
	case TierMonthly:
		if p.Monthly == nil {
			p.Monthly = NewCodeSet()
		}
		return p.Monthly
	case TierYearly:
		if p.Yearly == nil {
			p.Yearly = NewCodeSet()
		}
		return p.Yearly
	}
	return nil
}

// Resolve returns the first tier containing code, monthly before yearly.
func (p *CodePool) Resolve(code string) (Tier, bool) {
	if p == nil {
		return "", false
	}
	for _, t := range Tiers {
		if p.Tier(t).Has(code) {
			return t, true
		}
	}
	return "", false
}

// Contains reports membership in any tier.
func (p *CodePool) Contains(code string) bool {
	_, ok := p.Resolve(code)
	return ok
}

// Merge unions other into p tier by tier, skipping codes in exclude.
func (p *CodePool) Merge(other *CodePool, exclude *CodeSet) {
	if other == nil {
		return
	}
	for _, t := range Tiers {
		dst := p.Tier(t)
		for _, c := range other.Tier(t).Codes() {
			if exclude.Has(c) {
				continue
			}
			dst.Add(c)
		}
	}
}

// Size is the total number of codes across tiers.
func (p *CodePool) Size() int {
	return p.Tier(TierMonthly).Len() + p.Tier(TierYearly).Len()
}

// Clone returns a deep copy of p.
func (p *CodePool) Clone() *CodePool {
	if p == nil {
		return nil
	}
	return &CodePool{
		Monthly:   NewCodeSet(p.Tier(TierMonthly).Codes()...),
		Yearly:    NewCodeSet(p.Tier(TierYearly).Codes()...),
		FetchedAt: p.FetchedAt,
	}
}
