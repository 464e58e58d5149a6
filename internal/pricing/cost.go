package pricing

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// ErrNegativeTokens indicates a token vector with a negative slot reached
// the calculator. This is a programmer error and propagates to the caller.
var ErrNegativeTokens = errors.New("pricing: negative token count")

// UnknownModelError is returned in strict mode for models absent from the
// pricing table.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("pricing: unknown model %q", e.Model)
}

// Calculator computes USD costs at micro-precision, memoized on the full
// (model, token vector) tuple. Safe for concurrent use.
type Calculator struct {
	strict bool

	mu   sync.Mutex
	memo map[costKey]float64
}

type costKey struct {
	model                  string
	in, out, create, cread int64
}

// NewCalculator returns a calculator. In strict mode unknown models fail
// with *UnknownModelError; otherwise they fall back to sonnet rates.
func NewCalculator(strict bool) *Calculator {
	return &Calculator{
		strict: strict,
		memo:   make(map[costKey]float64),
	}
}

// Cost returns the USD cost of one API call, rounded half-away-from-zero
// at 1e-6 precision.
func (c *Calculator) Cost(modelName string, v model.TokenVector) (float64, error) {
	if v.Input < 0 || v.Output < 0 || v.CacheCreate < 0 || v.CacheRead < 0 {
		return 0, fmt.Errorf("%w: model %s", ErrNegativeTokens, modelName)
	}

	key := costKey{model: modelName, in: v.Input, out: v.Output, create: v.CacheCreate, cread: v.CacheRead}
	c.mu.Lock()
	if cost, ok := c.memo[key]; ok {
		c.mu.Unlock()
		return cost, nil
	}
	c.mu.Unlock()

	if Normalize(modelName) == SyntheticModel {
		c.store(key, 0)
		return 0, nil
	}

	cat, known := Categorize(modelName)
	if !known && c.strict {
		return 0, &UnknownModelError{Model: modelName}
	}

	r := RatesFor(cat)
	cost := float64(v.Input)*r.InputPerMTok/1e6 +
		float64(v.Output)*r.OutputPerMTok/1e6 +
		float64(v.CacheCreate)*r.CacheCreatePerMTok/1e6 +
		float64(v.CacheRead)*r.CacheReadPerMTok/1e6
	cost = RoundMicro(cost)

	c.store(key, cost)
	return cost, nil
}

func (c *Calculator) store(key costKey, cost float64) {
	c.mu.Lock()
	c.memo[key] = cost
	c.mu.Unlock()
}

// RoundMicro rounds to 1e-6 USD, half away from zero.
func RoundMicro(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}

// RoundDisplay rounds to display precision (1e-2 USD), half away from zero.
func RoundDisplay(x float64) float64 {
	return math.Round(x*100) / 100
}
