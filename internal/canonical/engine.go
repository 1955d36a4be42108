// Package canonical maps raw model payloads of every reading kind onto the
// single domain.Result schema, filling gaps by formula and template.
package canonical

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"palmreader/internal/divination"
	"palmreader/internal/domain"
)

// maxJitter bounds the compatibility jitter in either direction.
const maxJitter = 3

// JitterFunc returns a small offset added to derived compatibility scores.
// Values outside ±3 are clamped.
type JitterFunc func() int

// RandomJitter draws uniformly from [-3, 3].
func RandomJitter() int {
	return rand.IntN(2*maxJitter+1) - maxJitter
}

// NoJitter disables compatibility jitter.
func NoJitter() int { return 0 }

// SeededJitter returns a reproducible jitter sequence. It is safe for
// concurrent use.
func SeededJitter(seed uint64) JitterFunc {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return r.IntN(2*maxJitter+1) - maxJitter
	}
}

// Hints carries helper-computed values used when the payload lacks them.
type Hints struct {
	Numerology *divination.NumerologyChart
	Chart      *divination.BasicChart
}

// Engine canonicalizes raw payloads. The zero value is not usable; call New.
type Engine struct {
	jitter JitterFunc
}

type Option func(*Engine)

// WithJitter replaces the default random jitter source.
func WithJitter(j JitterFunc) Option {
	return func(e *Engine) {
		if j != nil {
			e.jitter = j
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{jitter: RandomJitter}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithJitterFunc returns a copy of e using j, leaving e untouched.
func (e *Engine) WithJitterFunc(j JitterFunc) *Engine {
	cp := *e
	if j != nil {
		cp.jitter = j
	}
	return &cp
}

func (e *Engine) jittered(score float64) float64 {
	j := 0
	if e.jitter != nil {
		j = e.jitter()
	}
	offset := clamp(float64(j), -maxJitter, maxJitter)
	return round1(clamp(score+offset, compatMin, compatMax))
}

// Canonicalize maps obj onto the canonical result for kind. It fails only for
// an unknown kind or an object that cannot be re-encoded.
func (e *Engine) Canonicalize(kind domain.ReadingKind, obj map[string]any, hints Hints) (*domain.Result, error) {
	if obj == nil {
		obj = map[string]any{}
	}
	var (
		res *domain.Result
		err error
	)
	switch kind {
	case domain.KindPalm:
		var payload PalmPayload
		payload, err = DecodePalm(obj)
		if err == nil {
			res = e.palm(payload)
		}
	case domain.KindNumerology:
		var payload NumerologyPayload
		payload, err = DecodeNumerology(obj)
		if err == nil {
			res = e.numerology(payload, hints.Numerology)
		}
	case domain.KindAstrology:
		var payload AstrologyPayload
		payload, err = DecodeAstrology(obj)
		if err == nil {
			res = e.astrology(payload, hints.Chart)
		}
	default:
		return nil, fmt.Errorf("canonical: unsupported kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	res.Kind = kind
	ensureComplete(res)
	return res, nil
}

// ensureComplete replaces nil collections so the encoded result never
// carries null.
func ensureComplete(r *domain.Result) {
	if r.Lines == nil {
		r.Lines = map[string]domain.Line{}
	}
	if r.Traits == nil {
		r.Traits = []domain.Trait{}
	}
	if r.Predictions == nil {
		r.Predictions = []domain.Prediction{}
	}
	if r.SpecialMarks == nil {
		r.SpecialMarks = []domain.SpecialMark{}
	}
	if r.Compatibility == nil {
		r.Compatibility = []domain.Compatibility{}
	}
	if r.Mounts == nil {
		r.Mounts = map[string]domain.Mount{}
	}
}
