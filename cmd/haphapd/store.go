package main

import (
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// CurveStore caches the precomputed curves and regenerates them lazily after a
// parameter update.
//
// Every cached curve is tagged with the parameter generation it was built from.
// Readers only accept a curve from the current generation, so an Update is
// visible to every Get that starts after it returns, while a reader that already
// holds a curve keeps using it untouched.
type CurveStore struct {
	version atomic.Pointer[paramsVersion]
	curves  [curveKindCount]atomic.Pointer[cachedCurve]

	group singleflight.Group
}

type paramsVersion struct {
	gen    uint64
	params EffectParameters
}

type cachedCurve struct {
	gen   uint64
	curve Curve
}

// NewCurveStore returns a store for p. p must be valid.
func NewCurveStore(p EffectParameters) *CurveStore {
	s := &CurveStore{}
	s.version.Store(&paramsVersion{gen: 1, params: p})
	return s
}

// Params returns the active parameters.
func (s *CurveStore) Params() EffectParameters {
	return s.version.Load().params
}

// Update replaces the active parameters and invalidates every cached curve.
// Invalid parameters are rejected and leave the store untouched.
func (s *CurveStore) Update(p EffectParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for {
		cur := s.version.Load()
		next := &paramsVersion{gen: cur.gen + 1, params: p}
		if s.version.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Get returns the curve of the given kind for the active parameters.
func (s *CurveStore) Get(kind CurveKind) Curve {
	if kind < 0 || kind >= curveKindCount {
		return Curve{Kind: kind}
	}
	v := s.version.Load()
	if c := s.curves[kind].Load(); c != nil && c.gen == v.gen {
		return c.curve
	}

	key := kind.String() + "/" + strconv.FormatUint(v.gen, 10)
	res, _, _ := s.group.Do(key, func() (any, error) {
		c := GenerateCurve(kind, v.params)
		s.publish(kind, &cachedCurve{gen: v.gen, curve: c})
		return c, nil
	})
	return res.(Curve)
}

// publish installs c unless a newer generation is already cached.
func (s *CurveStore) publish(kind CurveKind, c *cachedCurve) {
	for {
		cur := s.curves[kind].Load()
		if cur != nil && cur.gen >= c.gen {
			return
		}
		if s.curves[kind].CompareAndSwap(cur, c) {
			return
		}
	}
}
