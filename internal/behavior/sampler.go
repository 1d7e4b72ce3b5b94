package behavior

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// ErrNoActions is returned when a sampler is built from an empty action set.
var ErrNoActions = errors.New("behavior: at least one action is required")

// Sampler picks actions from a discrete distribution proportional to weight.
//
// A Sampler is not safe for concurrent use; each virtual user owns one.
type Sampler struct {
	actions    []Action
	cumulative []float64
	total      float64
	rng        *rand.Rand
}

// NewSampler builds a sampler over the given actions. Every weight must be
// positive. A nil rng gets a time-seeded source.
func NewSampler(actions []WeightedAction, rng *rand.Rand) (*Sampler, error) {
	if len(actions) == 0 {
		return nil, ErrNoActions
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Sampler{
		actions:    make([]Action, 0, len(actions)),
		cumulative: make([]float64, 0, len(actions)),
		rng:        rng,
	}
	for _, wa := range actions {
		if !(wa.Weight > 0) {
			return nil, fmt.Errorf("behavior: weight for %s must be positive, got %v", wa.Action, wa.Weight)
		}
		s.total += wa.Weight
		s.actions = append(s.actions, wa.Action)
		s.cumulative = append(s.cumulative, s.total)
	}
	return s, nil
}

// Next returns the next action.
func (s *Sampler) Next() Action {
	r := s.rng.Float64() * s.total
	i := sort.Search(len(s.cumulative), func(i int) bool { return r < s.cumulative[i] })
	if i == len(s.cumulative) {
		i--
	}
	return s.actions[i]
}

// Probability returns the selection probability of a, or 0 if a is not in
// the set.
func (s *Sampler) Probability(a Action) float64 {
	var w, prev float64
	for i, act := range s.actions {
		if act == a {
			w += s.cumulative[i] - prev
		}
		prev = s.cumulative[i]
	}
	return w / s.total
}
