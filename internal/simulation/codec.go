package simulation

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/soil"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// Requests and responses travel as google.protobuf.Struct so the service
// needs no generated stubs.

func encodeRequest(req Request) (*structpb.Struct, error) {
	if req.Case.Profile == nil {
		return nil, fmt.Errorf("encode request: soil profile is required")
	}
	names := make([]any, len(req.Names))
	for i, n := range req.Names {
		names[i] = n
	}
	layers := make([]any, 0)
	for _, l := range req.Case.Profile.Layers() {
		layers = append(layers, map[string]any{
			"top":                  l.Top,
			"bottom":               l.Bottom,
			"shear_modulus_top":    l.ShearModulusTop,
			"shear_modulus_bottom": l.ShearModulusBottom,
			"poisson_top":          l.PoissonTop,
			"poisson_bottom":       l.PoissonBottom,
			"tau_f_top":            l.TauFTop,
			"tau_f_bottom":         l.TauFBottom,
		})
	}
	p := req.Case.Pile
	return structpb.NewStruct(map[string]any{
		"names":  names,
		"values": floatsToList(req.Values),
		"pile": map[string]any{
			"length":          p.Length,
			"radius":          p.Radius,
			"area":            p.Area,
			"elastic_modulus": p.ElasticModulus,
		},
		"layers":      layers,
		"target_load": req.Case.TargetLoad,
	})
}

func decodeRequest(s *structpb.Struct) (Request, error) {
	if s == nil {
		return Request{}, fmt.Errorf("decode request: empty message")
	}
	fields := s.GetFields()

	var req Request
	for _, v := range fields["names"].GetListValue().GetValues() {
		req.Names = append(req.Names, v.GetStringValue())
	}
	req.Values = listToFloats(fields["values"].GetListValue())
	if len(req.Names) != len(req.Values) {
		return Request{}, fmt.Errorf("decode request: %d names for %d values", len(req.Names), len(req.Values))
	}

	pile := fields["pile"].GetStructValue().GetFields()
	req.Case.Pile = soil.Pile{
		Length:         pile["length"].GetNumberValue(),
		Radius:         pile["radius"].GetNumberValue(),
		Area:           pile["area"].GetNumberValue(),
		ElasticModulus: pile["elastic_modulus"].GetNumberValue(),
	}

	var layers []soil.Layer
	for _, v := range fields["layers"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		layers = append(layers, soil.Layer{
			Top:                f["top"].GetNumberValue(),
			Bottom:             f["bottom"].GetNumberValue(),
			ShearModulusTop:    f["shear_modulus_top"].GetNumberValue(),
			ShearModulusBottom: f["shear_modulus_bottom"].GetNumberValue(),
			PoissonTop:         f["poisson_top"].GetNumberValue(),
			PoissonBottom:      f["poisson_bottom"].GetNumberValue(),
			TauFTop:            f["tau_f_top"].GetNumberValue(),
			TauFBottom:         f["tau_f_bottom"].GetNumberValue(),
		})
	}
	profile, err := soil.NewProfile(layers)
	if err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	req.Case.Profile = profile
	req.Case.TargetLoad = fields["target_load"].GetNumberValue()
	return req, nil
}

func encodeCurve(c models.ResponseCurve) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"settlements": floatsToList(c.Settlements()),
		"loads":       floatsToList(c.Loads()),
	})
}

func decodeCurve(s *structpb.Struct) (models.ResponseCurve, error) {
	fields := s.GetFields()
	settlements := listToFloats(fields["settlements"].GetListValue())
	loads := listToFloats(fields["loads"].GetListValue())
	if len(settlements) != len(loads) {
		return models.ResponseCurve{}, fmt.Errorf("decode curve: %d settlements for %d loads", len(settlements), len(loads))
	}
	points := make([]models.Point, len(settlements))
	for i := range settlements {
		points[i] = models.Point{Settlement: settlements[i], Load: loads[i]}
	}
	return models.NewResponseCurve(points)
}

func floatsToList(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func listToFloats(list *structpb.ListValue) []float64 {
	values := list.GetValues()
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.GetNumberValue()
	}
	return out
}
