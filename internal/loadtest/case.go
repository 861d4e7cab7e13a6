// Package loadtest reads measured pile load tests together with the pile
// geometry and soil profile they were measured on.
package loadtest

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/soil"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// ErrInvalidCase is returned when a case document is incomplete or inconsistent.
var ErrInvalidCase = errors.New("invalid load test case")

// Document is the serialised form of a case, shared by YAML files and the HTTP API.
type Document struct {
	Name       string         `yaml:"name" json:"name"`
	Pile       soil.Pile      `yaml:"pile" json:"pile"`
	Soil       []soil.Layer   `yaml:"soil" json:"soil"`
	Points     []models.Point `yaml:"points" json:"points"`
	TargetLoad float64        `yaml:"target_load,omitempty" json:"target_load,omitempty"`
}

// Case is a validated load test ready for calibration.
type Case struct {
	Record     *models.LoadTestRecord
	Simulation simulation.Case
}

// Build validates the document and assembles the case.
func (d Document) Build() (*Case, error) {
	if d.Name == "" {
		d.Name = "unnamed"
	}
	record, err := models.NewLoadTestRecord(d.Name, d.Points)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCase, err)
	}
	profile, err := soil.NewProfile(d.Soil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCase, err)
	}
	if err := d.Pile.Validate(profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCase, err)
	}
	if d.TargetLoad < 0 || math.IsNaN(d.TargetLoad) {
		return nil, fmt.Errorf("%w: target load must be non-negative", ErrInvalidCase)
	}

	target := d.TargetLoad
	if target == 0 {
		target = record.MaxLoad()
	}
	if target <= 0 {
		return nil, fmt.Errorf("%w: load test %q has no positive load", ErrInvalidCase, d.Name)
	}
	return &Case{
		Record: record,
		Simulation: simulation.Case{
			Pile:       d.Pile,
			Profile:    profile,
			TargetLoad: target,
		},
	}, nil
}

// Document converts a case back to its serialised form.
func (c *Case) Document() Document {
	return Document{
		Name:       c.Record.Name(),
		Pile:       c.Simulation.Pile,
		Soil:       c.Simulation.Profile.Layers(),
		Points:     c.Record.Points(),
		TargetLoad: c.Simulation.TargetLoad,
	}
}

// Parse decodes a YAML (or JSON) case document.
func Parse(data []byte) (*Case, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse case: %w", err)
	}
	return doc.Build()
}

// LoadFile reads and parses a case file.
func LoadFile(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Marshal encodes a case as YAML.
func Marshal(c *Case) ([]byte, error) {
	return yaml.Marshal(c.Document())
}
