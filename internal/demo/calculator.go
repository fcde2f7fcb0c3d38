// Package demo provides the blueprints the errand CLI serves and exercises.
package demo

import (
	"context"
	"errors"
	"time"

	"github.com/casualjim/errand/target"
	"github.com/goccy/go-json"
)

// CalculatorKind is the blueprint kind of the calculator target.
const CalculatorKind = "calculator"

// ErrDivisionByZero is returned by the div operation.
var ErrDivisionByZero = errors.New("division by zero")

// Pair is the input of the binary operations.
type Pair struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Delay is the input of the slow operation.
type Delay struct {
	Millis int     `json:"millis"`
	Value  float64 `json:"value"`
}

// CalculatorConfig configures a calculator.
type CalculatorConfig struct {
	// Scale multiplies every result.
	Scale float64 `json:"scale,omitempty"`
}

// Calculator builds a calculator target.
func Calculator(cfg CalculatorConfig) (*target.Target, error) {
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	scale := cfg.Scale

	return target.New(CalculatorKind,
		target.Func("add", func(_ context.Context, p Pair) (float64, error) {
			return (p.A + p.B) * scale, nil
		}),
		target.Func("div", func(_ context.Context, p Pair) (float64, error) {
			if p.B == 0 {
				return 0, ErrDivisionByZero
			}
			return p.A / p.B * scale, nil
		}),
		target.Func("slow", func(ctx context.Context, d Delay) (float64, error) {
			select {
			case <-time.After(time.Duration(d.Millis) * time.Millisecond):
				return d.Value * scale, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}),
		target.Func("echo", func(_ context.Context, s string) (string, error) {
			return s, nil
		}),
	).WithConfig(raw), nil
}

// CalculatorBlueprint rebuilds a calculator from its raw config.
func CalculatorBlueprint(_ context.Context, config []byte) (*target.Target, error) {
	var cfg CalculatorConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
	}
	return Calculator(cfg)
}

// Register registers every demo blueprint.
func Register() {
	target.Register(CalculatorKind, CalculatorBlueprint)
}
