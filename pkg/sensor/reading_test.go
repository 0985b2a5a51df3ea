package sensor

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/cluso-sensornet/pkg/validation"
)

func TestGeneratorRanges(t *testing.T) {
	g := NewGenerator(7)

	for i := 0; i < 1000; i++ {
		r := g.Next()
		if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
			t.Fatalf("Temperature %v out of range", r.Temperature)
		}
		if r.Humidity < MinHumidity || r.Humidity > MaxHumidity {
			t.Fatalf("Humidity %v out of range", r.Humidity)
		}
		if r.Pressure < MinPressure || r.Pressure > MaxPressure {
			t.Fatalf("Pressure %v out of range", r.Pressure)
		}
		if err := r.Validate(); err != nil {
			t.Fatalf("Generated reading failed validation: %v", err)
		}
	}
}

func TestGeneratorTwoDecimals(t *testing.T) {
	g := NewGenerator(1)
	for i := 0; i < 100; i++ {
		r := g.Next()
		for _, v := range []float64{r.Temperature, r.Humidity, r.Pressure} {
			if math.Abs(v*100-math.Round(v*100)) > 1e-6 {
				t.Fatalf("Value %v has more than two decimals", v)
			}
		}
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	a, b := NewGenerator(42), NewGenerator(42)
	fixed := time.Unix(1700000000, 0)
	a.now = func() time.Time { return fixed }
	b.now = func() time.Time { return fixed }

	for i := 0; i < 10; i++ {
		if a.Next() != b.Next() {
			t.Fatal("Generators with equal seeds diverged")
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	r := Reading{Temperature: 24.5, Humidity: 61.25, Pressure: 1001.1, Timestamp: time.UnixMilli(1700000000123)}

	// Through JSON, as the record codec does
	data, err := json.Marshal(r.Payload())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	got, err := ReadingFromPayload(decoded)
	if err != nil {
		t.Fatalf("ReadingFromPayload failed: %v", err)
	}
	if !got.Timestamp.Equal(r.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, r.Timestamp)
	}
	got.Timestamp = r.Timestamp
	if got != r {
		t.Errorf("ReadingFromPayload = %+v, want %+v", got, r)
	}
}

func TestReadingFromPayloadRejects(t *testing.T) {
	base := Reading{Temperature: 25, Humidity: 60, Pressure: 1000, Timestamp: time.Now()}.Payload()

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing humidity", func(p map[string]any) { delete(p, KeyHumidity) }},
		{"string pressure", func(p map[string]any) { p[KeyPressure] = "high" }},
		{"implausible temperature", func(p map[string]any) { p[KeyTemperature] = 500.0 }},
		{"negative humidity", func(p map[string]any) { p[KeyHumidity] = -3.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := make(map[string]any, len(base))
			for k, v := range base {
				p[k] = v
			}
			tt.mutate(p)

			if _, err := ReadingFromPayload(p); !errors.Is(err, validation.ErrInvalidValue) {
				t.Errorf("Expected ErrInvalidValue, got %v", err)
			}
		})
	}
}

// TestGeneratorProperties checks range invariants across seeds
func TestGeneratorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every generated reading validates", prop.ForAll(
		func(seed uint64) bool {
			return NewGenerator(seed).Next().Validate() == nil
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
