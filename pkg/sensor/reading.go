// Package sensor produces the readings each node owns: temperature,
// humidity and pressure, refreshed on the data-mutation cycle.
package sensor

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/validation"
)

// Generated value ranges
const (
	MinTemperature = 20.0
	MaxTemperature = 30.0
	MinHumidity    = 50.0
	MaxHumidity    = 80.0
	MinPressure    = 980.0
	MaxPressure    = 1020.0
)

// Payload keys
const (
	KeyTemperature = "temperature"
	KeyHumidity    = "humidity"
	KeyPressure    = "pressure"
	KeyTimestamp   = "timestamp"
)

// Reading is one set of measurements. Validation bounds are the physically
// plausible range, wider than what the generator produces.
type Reading struct {
	Temperature float64   `json:"temperature" validate:"gte=-50,lte=100"`
	Humidity    float64   `json:"humidity" validate:"gte=0,lte=100"`
	Pressure    float64   `json:"pressure" validate:"gte=800,lte=1200"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
}

// Validate checks the reading against its bounds
func (r Reading) Validate() error {
	return validation.Struct(r)
}

// Payload converts the reading to the opaque map carried by the replicated record
func (r Reading) Payload() map[string]any {
	return map[string]any{
		KeyTemperature: r.Temperature,
		KeyHumidity:    r.Humidity,
		KeyPressure:    r.Pressure,
		KeyTimestamp:   r.Timestamp.UnixMilli(),
	}
}

// ReadingFromPayload rebuilds a reading from a record payload.
// Numbers may arrive as float64 (decoded JSON) or as Go numeric types.
func ReadingFromPayload(p map[string]any) (Reading, error) {
	var r Reading
	var err error

	if r.Temperature, err = number(p, KeyTemperature); err != nil {
		return Reading{}, err
	}
	if r.Humidity, err = number(p, KeyHumidity); err != nil {
		return Reading{}, err
	}
	if r.Pressure, err = number(p, KeyPressure); err != nil {
		return Reading{}, err
	}
	ms, err := number(p, KeyTimestamp)
	if err != nil {
		return Reading{}, err
	}
	r.Timestamp = time.UnixMilli(int64(ms))

	if err := r.Validate(); err != nil {
		return Reading{}, err
	}
	return r, nil
}

func number(p map[string]any, key string) (float64, error) {
	switch v := p[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, fmt.Errorf("%w: missing %s", validation.ErrInvalidValue, key)
	default:
		return 0, fmt.Errorf("%w: %s has type %T", validation.ErrInvalidValue, key, v)
	}
}

// Generator produces random readings inside the generated ranges.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator. Equal seeds give equal sequences.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Next returns a fresh reading rounded to two decimals
func (g *Generator) Next() Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Reading{
		Temperature: g.uniform(MinTemperature, MaxTemperature),
		Humidity:    g.uniform(MinHumidity, MaxHumidity),
		Pressure:    g.uniform(MinPressure, MaxPressure),
		Timestamp:   g.now(),
	}
}

// uniform must be called with g.mu held
func (g *Generator) uniform(lo, hi float64) float64 {
	return round2(lo + g.rng.Float64()*(hi-lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
