package loadtest

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/soil"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// Workbook sheet names
const (
	SheetLoadTest = "load_test"
	SheetPile     = "pile"
	SheetSoil     = "soil"
)

// column scale factors to SI units
var (
	settlementColumns = map[string]float64{"settlement": 1, "settlement_m": 1, "settlement_mm": 1e-3}
	loadColumns       = map[string]float64{"load": 1, "load_n": 1, "load_kn": 1e3}
	soilColumns       = []string{"top", "bottom", "shear_modulus_top", "shear_modulus_bottom", "poisson_top", "poisson_bottom", "tau_f_top", "tau_f_bottom"}
)

// ReadWorkbook reads a load test workbook. The load_test sheet (or the first
// sheet when absent) holds a header row with settlement and load columns.
// Optional pile (key/value rows) and soil (one layer per row) sheets complete the case.
func ReadWorkbook(r io.Reader) (Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Document{}, fmt.Errorf("%w: unreadable workbook: %v", ErrInvalidCase, err)
	}
	defer f.Close()

	doc := Document{}
	sheet := SheetLoadTest
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}
	if doc.Points, err = readPoints(f, sheet); err != nil {
		return Document{}, err
	}
	if idx, _ := f.GetSheetIndex(SheetPile); idx >= 0 {
		if err := readPile(f, &doc); err != nil {
			return Document{}, err
		}
	}
	if idx, _ := f.GetSheetIndex(SheetSoil); idx >= 0 {
		if doc.Soil, err = readSoil(f); err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

func readPoints(f *excelize.File, sheet string) ([]models.Point, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrInvalidCase, sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: sheet %q has no data rows", ErrInvalidCase, sheet)
	}

	sCol, lCol := -1, -1
	var sScale, lScale float64
	for i, h := range rows[0] {
		key := normalizeHeader(h)
		if scale, ok := settlementColumns[key]; ok && sCol < 0 {
			sCol, sScale = i, scale
		}
		if scale, ok := loadColumns[key]; ok && lCol < 0 {
			lCol, lScale = i, scale
		}
	}
	if sCol < 0 || lCol < 0 {
		return nil, fmt.Errorf("%w: sheet %q needs settlement and load columns, got %v", ErrInvalidCase, sheet, rows[0])
	}

	var points []models.Point
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		s, err := cellFloat(row, sCol)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q row %d settlement: %v", ErrInvalidCase, sheet, i+2, err)
		}
		l, err := cellFloat(row, lCol)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q row %d load: %v", ErrInvalidCase, sheet, i+2, err)
		}
		points = append(points, models.Point{Settlement: s * sScale, Load: l * lScale})
	}
	return points, nil
}

func readPile(f *excelize.File, doc *Document) error {
	rows, err := f.GetRows(SheetPile, excelize.Options{RawCellValue: true})
	if err != nil {
		return fmt.Errorf("%w: sheet %q: %v", ErrInvalidCase, SheetPile, err)
	}
	for i, row := range rows {
		if len(row) < 2 || isBlank(row) {
			continue
		}
		key := normalizeHeader(row[0])
		if key == "name" {
			doc.Name = strings.TrimSpace(row[1])
			continue
		}
		v, err := cellFloat(row, 1)
		if err != nil {
			if i == 0 {
				// header row such as "key | value"
				continue
			}
			return fmt.Errorf("%w: sheet %q row %d: %v", ErrInvalidCase, SheetPile, i+1, err)
		}
		switch key {
		case "length":
			doc.Pile.Length = v
		case "radius":
			doc.Pile.Radius = v
		case "area":
			doc.Pile.Area = v
		case "elastic_modulus":
			doc.Pile.ElasticModulus = v
		case "target_load":
			doc.TargetLoad = v
		default:
			return fmt.Errorf("%w: sheet %q row %d: unknown key %q", ErrInvalidCase, SheetPile, i+1, row[0])
		}
	}
	return nil
}

func readSoil(f *excelize.File) ([]soil.Layer, error) {
	rows, err := f.GetRows(SheetSoil, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrInvalidCase, SheetSoil, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: sheet %q has no layers", ErrInvalidCase, SheetSoil)
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[normalizeHeader(h)] = i
	}
	for _, name := range soilColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: sheet %q is missing column %q", ErrInvalidCase, SheetSoil, name)
		}
	}

	var layers []soil.Layer
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		vals := make([]float64, len(soilColumns))
		for j, name := range soilColumns {
			v, err := cellFloat(row, index[name])
			if err != nil {
				return nil, fmt.Errorf("%w: sheet %q row %d %s: %v", ErrInvalidCase, SheetSoil, i+2, name, err)
			}
			vals[j] = v
		}
		layers = append(layers, soil.Layer{
			Top:                vals[0],
			Bottom:             vals[1],
			ShearModulusTop:    vals[2],
			ShearModulusBottom: vals[3],
			PoissonTop:         vals[4],
			PoissonBottom:      vals[5],
			TauFTop:            vals[6],
			TauFBottom:         vals[7],
		})
	}
	return layers, nil
}

// WriteWorkbook writes doc in the layout ReadWorkbook accepts.
func WriteWorkbook(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetLoadTest); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetLoadTest, "A1", &[]any{"settlement_m", "load_n"}); err != nil {
		return err
	}
	for i, p := range doc.Points {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetLoadTest, cell, &[]any{p.Settlement, p.Load}); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetPile); err != nil {
		return err
	}
	pileRows := [][]any{
		{"key", "value"},
		{"name", doc.Name},
		{"length", doc.Pile.Length},
		{"radius", doc.Pile.Radius},
		{"area", doc.Pile.Area},
		{"elastic_modulus", doc.Pile.ElasticModulus},
	}
	if doc.TargetLoad > 0 {
		pileRows = append(pileRows, []any{"target_load", doc.TargetLoad})
	}
	for i, row := range pileRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetPile, cell, &row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetSoil); err != nil {
		return err
	}
	header := make([]any, len(soilColumns))
	for i, c := range soilColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetSoil, "A1", &header); err != nil {
		return err
	}
	for i, l := range doc.Soil {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{l.Top, l.Bottom, l.ShearModulusTop, l.ShearModulusBottom, l.PoissonTop, l.PoissonBottom, l.TauFTop, l.TauFBottom}
		if err := f.SetSheetRow(SheetSoil, cell, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "(", "", ")", "", "[", "", "]", "").Replace(h)
	return h
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cellFloat(row []string, col int) (float64, error) {
	if col >= len(row) || strings.TrimSpace(row[col]) == "" {
		return 0, fmt.Errorf("empty cell")
	}
	return strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
}
