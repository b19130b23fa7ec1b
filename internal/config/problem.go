package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/STRATA/internal/integrand"
	"github.com/copyleftdev/STRATA/internal/integrate"
)

// Problem is a self-contained integration problem definition, loadable
// from a YAML file for the command-line runner.
type Problem struct {
	Integrand string           `yaml:"integrand"`
	Params    integrand.Params `yaml:"params"`
	Lower     []float64        `yaml:"lower"`
	Upper     []float64        `yaml:"upper"`
	Calls     int              `yaml:"calls"`
	Workers   int              `yaml:"workers"`
	Seed      int64            `yaml:"seed"`
	Combine   string           `yaml:"combine"`
	Engine    struct {
		Name       string  `yaml:"name"`
		Iterations int     `yaml:"iterations"`
		Bins       int     `yaml:"bins"`
		Alpha      float64 `yaml:"alpha"`
	} `yaml:"engine"`
}

// DefaultProblem returns the reference problem: the polynomial
// integrand with p=q=0.1 over the unit cube in three dimensions,
// ten million calls.
func DefaultProblem() *Problem {
	p := &Problem{
		Integrand: "polynomial",
		Params:    integrand.DefaultParams(),
		Lower:     []float64{0, 0, 0},
		Upper:     []float64{1, 1, 1},
		Calls:     10000000,
		Combine:   "mean",
	}
	p.Engine.Name = "vegas"
	return p
}

// LoadProblem reads a YAML problem file over the defaults.
func LoadProblem(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := DefaultProblem()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Region returns the problem's integration region.
func (p *Problem) Region() integrate.Region {
	return integrate.Region{Lower: p.Lower, Upper: p.Upper}
}

// Validate checks the problem against the integrand registry and the
// run invariants.
func (p *Problem) Validate() error {
	if _, err := integrand.Lookup(p.Integrand); err != nil {
		return err
	}
	if err := p.Region().Validate(); err != nil {
		return err
	}
	if p.Calls <= 0 {
		return integrate.NewConfigErrorf("calls", "must be positive, got %d", p.Calls)
	}
	if p.Workers < 0 {
		return integrate.NewConfigErrorf("workers", "must not be negative, got %d", p.Workers)
	}
	if _, err := integrate.ParseCombineMode(p.Combine); err != nil {
		return err
	}
	switch p.Engine.Name {
	case "", "vegas", "plain":
	default:
		return integrate.NewConfigErrorf("engine", "unknown engine %q, have vegas or plain", p.Engine.Name)
	}
	return nil
}
