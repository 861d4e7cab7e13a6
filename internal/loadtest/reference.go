package loadtest

import (
	"math"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/soil"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// ONeill1982Document is the instrumented single steel pipe pile test reported
// by O'Neill et al. (1982): 13.1 m long, 273 mm outer diameter, 9.3 mm wall.
func ONeill1982Document() Document {
	const (
		radius = 137e-3
		wall   = 9.3e-3
	)
	settlements := []float64{0, 0.45e-3, 1e-3, 1.4e-3, 2e-3, 2.85e-3, 3.4e-3, 4.2e-3}
	loads := []float64{0, 118e3, 250e3, 331e3, 436e3, 550e3, 600e3, 653e3}
	points := make([]models.Point, len(settlements))
	for i := range settlements {
		points[i] = models.Point{Settlement: settlements[i], Load: loads[i]}
	}
	return Document{
		Name: "oneill-1982",
		Pile: soil.Pile{
			Length:         13.1,
			Radius:         radius,
			Area:           math.Pi*radius*radius - math.Pi*(radius-wall)*(radius-wall),
			ElasticModulus: 210e9,
		},
		Soil: []soil.Layer{{
			Top:                0,
			Bottom:             13.1,
			ShearModulusTop:    65e6,
			ShearModulusBottom: 65e6,
			PoissonTop:         0.5,
			PoissonBottom:      0.5,
			TauFTop:            19e3,
			TauFBottom:         93e3,
		}},
		Points: points,
	}
}

// ONeill1982 returns the reference case. It panics only if the embedded data is invalid.
func ONeill1982() *Case {
	c, err := ONeill1982Document().Build()
	if err != nil {
		panic(err)
	}
	return c
}
