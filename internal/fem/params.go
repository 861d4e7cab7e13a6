package fem

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidParams = errors.New("invalid spring parameters")

// Parameter names in canonical order.
const (
	ParamRfb     = "Rfb"
	ParamSbu     = "Sbu"
	ParamAlpha21 = "alpha21"
	ParamRfs     = "Rfs"
)

// ParamNames lists the calibratable spring parameters in canonical order.
var ParamNames = []string{ParamRfb, ParamSbu, ParamAlpha21, ParamRfs}

// Params are the soil spring calibration factors.
type Params struct {
	// Rfb divides the elastic base stiffness to account for installation effects.
	Rfb float64 `json:"Rfb"`
	// Sbu is the base settlement at which the base spring yields (m).
	Sbu float64 `json:"Sbu"`
	// Alpha21 is the ratio of post-yield to initial base stiffness.
	Alpha21 float64 `json:"alpha21"`
	// Rfs divides the ultimate shaft friction.
	Rfs float64 `json:"Rfs"`
}

// DefaultParams returns uncalibrated factors.
func DefaultParams() Params {
	return Params{Rfb: 1, Sbu: 0.01, Alpha21: 0.1, Rfs: 1}
}

// Validate rejects factors the spring laws cannot represent.
func (p Params) Validate() error {
	for name, v := range map[string]float64{ParamRfb: p.Rfb, ParamSbu: p.Sbu, ParamAlpha21: p.Alpha21, ParamRfs: p.Rfs} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidParams, name)
		}
	}
	if p.Rfb <= 0 || p.Rfs <= 0 || p.Sbu <= 0 || p.Alpha21 < 0 {
		return fmt.Errorf("%w: Rfb, Rfs and Sbu must be positive and alpha21 non-negative", ErrInvalidParams)
	}
	return nil
}

// ParamsFromVector maps named values onto Params. Names missing from the vector keep their defaults.
func ParamsFromVector(names []string, values []float64) (Params, error) {
	if len(names) != len(values) {
		return Params{}, fmt.Errorf("%w: %d names for %d values", ErrInvalidParams, len(names), len(values))
	}
	p := DefaultParams()
	for i, name := range names {
		switch strings.ToLower(name) {
		case "rfb":
			p.Rfb = values[i]
		case "sbu":
			p.Sbu = values[i]
		case "alpha21":
			p.Alpha21 = values[i]
		case "rfs":
			p.Rfs = values[i]
		default:
			return Params{}, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParams, name)
		}
	}
	return p, nil
}

// IsKnownParam reports whether name is a spring parameter the model understands.
func IsKnownParam(name string) bool {
	for _, n := range ParamNames {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
