// Package soil describes the soil profile around a single pile and the pile
// section itself.
package soil

import (
	"errors"
	"fmt"
	"math"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

var (
	ErrInvalidLayer   = errors.New("invalid soil layer")
	ErrInvalidProfile = errors.New("invalid soil profile")
	ErrInvalidPile    = errors.New("invalid pile geometry")
)

// Layer is a soil layer whose properties vary linearly between its top and bottom.
// Depths are measured downwards from the pile head in metres; moduli and stresses in pascals.
type Layer struct {
	Top                float64 `yaml:"top" json:"top" mapstructure:"top"`
	Bottom             float64 `yaml:"bottom" json:"bottom" mapstructure:"bottom"`
	ShearModulusTop    float64 `yaml:"shear_modulus_top" json:"shear_modulus_top" mapstructure:"shear_modulus_top"`
	ShearModulusBottom float64 `yaml:"shear_modulus_bottom" json:"shear_modulus_bottom" mapstructure:"shear_modulus_bottom"`
	PoissonTop         float64 `yaml:"poisson_top" json:"poisson_top" mapstructure:"poisson_top"`
	PoissonBottom      float64 `yaml:"poisson_bottom" json:"poisson_bottom" mapstructure:"poisson_bottom"`
	TauFTop            float64 `yaml:"tau_f_top" json:"tau_f_top" mapstructure:"tau_f_top"`
	TauFBottom         float64 `yaml:"tau_f_bottom" json:"tau_f_bottom" mapstructure:"tau_f_bottom"`
}

// Thickness returns the layer thickness
func (l Layer) Thickness() float64 {
	return l.Bottom - l.Top
}

func (l Layer) fraction(depth float64) float64 {
	return (depth - l.Top) / l.Thickness()
}

// ShearModulus returns G at depth
func (l Layer) ShearModulus(depth float64) float64 {
	return utils.Lerp(l.ShearModulusTop, l.ShearModulusBottom, l.fraction(depth))
}

// PoissonRatio returns ν at depth
func (l Layer) PoissonRatio(depth float64) float64 {
	return utils.Lerp(l.PoissonTop, l.PoissonBottom, l.fraction(depth))
}

// TauF returns the ultimate shaft friction stress at depth
func (l Layer) TauF(depth float64) float64 {
	return utils.Lerp(l.TauFTop, l.TauFBottom, l.fraction(depth))
}

// AvgShearModulus returns the mean of the top and bottom shear moduli
func (l Layer) AvgShearModulus() float64 {
	return (l.ShearModulusTop + l.ShearModulusBottom) / 2
}

// AvgPoissonRatio returns the mean of the top and bottom Poisson ratios
func (l Layer) AvgPoissonRatio() float64 {
	return (l.PoissonTop + l.PoissonBottom) / 2
}

func (l Layer) validate() error {
	if !(l.Thickness() > 0) {
		return fmt.Errorf("%w: bottom %g must be below top %g", ErrInvalidLayer, l.Bottom, l.Top)
	}
	if l.ShearModulusTop <= 0 || l.ShearModulusBottom <= 0 {
		return fmt.Errorf("%w: shear modulus must be positive", ErrInvalidLayer)
	}
	for _, nu := range []float64{l.PoissonTop, l.PoissonBottom} {
		if nu < 0 || nu > 0.5 {
			return fmt.Errorf("%w: poisson ratio %g outside [0, 0.5]", ErrInvalidLayer, nu)
		}
	}
	if l.TauFTop < 0 || l.TauFBottom < 0 {
		return fmt.Errorf("%w: friction stress must be non-negative", ErrInvalidLayer)
	}
	return nil
}

// Profile is an ordered, contiguous stack of layers starting at the ground surface.
type Profile struct {
	layers []Layer
}

// NewProfile validates that layers start at depth zero and are contiguous.
func NewProfile(layers []Layer) (*Profile, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrInvalidProfile)
	}
	for i, l := range layers {
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		want := 0.0
		if i > 0 {
			want = layers[i-1].Bottom
		}
		if math.Abs(l.Top-want) > 1e-9 {
			return nil, fmt.Errorf("%w: layer %d starts at %g, expected %g", ErrInvalidProfile, i, l.Top, want)
		}
	}
	return &Profile{layers: append([]Layer(nil), layers...)}, nil
}

// Layers returns a copy of the profile's layers
func (p *Profile) Layers() []Layer {
	return append([]Layer(nil), p.layers...)
}

// Depth returns the bottom of the deepest layer
func (p *Profile) Depth() float64 {
	return p.layers[len(p.layers)-1].Bottom
}

// layerAt returns the layer containing depth; depths outside the profile clamp to the end layers.
func (p *Profile) layerAt(depth float64) (Layer, float64) {
	if depth <= 0 {
		return p.layers[0], 0
	}
	for _, l := range p.layers {
		if depth <= l.Bottom {
			return l, depth
		}
	}
	last := p.layers[len(p.layers)-1]
	return last, last.Bottom
}

// ShearModulus returns G at depth
func (p *Profile) ShearModulus(depth float64) float64 {
	l, z := p.layerAt(depth)
	return l.ShearModulus(z)
}

// PoissonRatio returns ν at depth
func (p *Profile) PoissonRatio(depth float64) float64 {
	l, z := p.layerAt(depth)
	return l.PoissonRatio(z)
}

// TauF returns the ultimate shaft friction stress at depth
func (p *Profile) TauF(depth float64) float64 {
	l, z := p.layerAt(depth)
	return l.TauF(z)
}

// MaxShearModulus returns the largest shear modulus in the profile
func (p *Profile) MaxShearModulus() float64 {
	max := 0.0
	for _, l := range p.layers {
		max = math.Max(max, math.Max(l.ShearModulusTop, l.ShearModulusBottom))
	}
	return max
}

// AvgPoissonRatio returns the thickness-weighted mean Poisson ratio
func (p *Profile) AvgPoissonRatio() float64 {
	sum := 0.0
	for _, l := range p.layers {
		sum += l.AvgPoissonRatio() * l.Thickness()
	}
	return sum / p.Depth()
}

// RhoM returns the shear modulus inhomogeneity factor
// (Lee, Settlement of pile groups, J. Geotech. Eng. 119(9), 1993).
func (p *Profile) RhoM() float64 {
	gmax := p.MaxShearModulus()
	sum := 0.0
	for _, l := range p.layers {
		sum += l.AvgShearModulus() * l.Thickness()
	}
	return sum / (gmax * p.Depth())
}

// InfluenceRadius returns rm, the radius beyond which shaft shear strains vanish.
func (p *Profile) InfluenceRadius(pileLength float64) float64 {
	return 2.5 * pileLength * p.RhoM() * (1 - p.AvgPoissonRatio())
}

// Pile is a straight, axially loaded pile.
type Pile struct {
	Length         float64 `yaml:"length" json:"length" mapstructure:"length"`
	Radius         float64 `yaml:"radius" json:"radius" mapstructure:"radius"`
	Area           float64 `yaml:"area,omitempty" json:"area,omitempty" mapstructure:"area"`
	ElasticModulus float64 `yaml:"elastic_modulus" json:"elastic_modulus" mapstructure:"elastic_modulus"`
}

// Validate checks the pile geometry against the profile it sits in. A nil profile skips the depth check.
func (p Pile) Validate(profile *Profile) error {
	if p.Length <= 0 || p.Radius <= 0 || p.ElasticModulus <= 0 || p.Area < 0 {
		return fmt.Errorf("%w: length, radius and elastic modulus must be positive", ErrInvalidPile)
	}
	if profile != nil && p.Length > profile.Depth()+1e-9 {
		return fmt.Errorf("%w: pile length %g exceeds profile depth %g", ErrInvalidPile, p.Length, profile.Depth())
	}
	return nil
}

// SectionArea returns the structural area; a zero Area means a solid circular section.
func (p Pile) SectionArea() float64 {
	if p.Area > 0 {
		return p.Area
	}
	return p.TipArea()
}

// TipArea returns the gross base area πr²
func (p Pile) TipArea() float64 {
	return math.Pi * p.Radius * p.Radius
}

// Perimeter returns the shaft perimeter 2πr
func (p Pile) Perimeter() float64 {
	return 2 * math.Pi * p.Radius
}

// AxialStiffness returns EA
func (p Pile) AxialStiffness() float64 {
	return p.ElasticModulus * p.SectionArea()
}
