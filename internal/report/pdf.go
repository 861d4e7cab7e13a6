package report

import (
	"fmt"
	"io"
	"math"

	"github.com/phpdave11/gofpdf"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// chart area in mm
const (
	chartWidth  = 170.0
	chartHeight = 90.0
)

// WritePDF renders a one-page A4 summary with a load-settlement chart.
func (r *Report) WritePDF(w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.Title(), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, r.Title())
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", r.GeneratedAt.Format("2006-01-02 15:04 MST")))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, kv := range r.summaryRows() {
		pdf.CellFormat(45, 6, kv[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(125, 6, kv[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Calibrated parameters")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, p := range r.parameters() {
		pdf.CellFormat(45, 6, p.name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, formatFloat(p.value), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Load-settlement response")
	pdf.Ln(10)
	r.drawChart(pdf, pdf.GetX(), pdf.GetY())

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// drawChart plots measured points as dots and the simulated curve as a line,
// settlement downwards as is usual for pile tests.
func (r *Report) drawChart(pdf *gofpdf.Fpdf, x0, y0 float64) {
	measured, simulated := r.Case.Points, r.simulated()
	maxS, maxP := extent(measured, simulated)

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
	pdf.Rect(x0, y0, chartWidth, chartHeight, "D")

	pdf.SetFont("Helvetica", "", 8)
	pdf.Text(x0, y0-1, "load (kN)")
	pdf.Text(x0+chartWidth-20, y0-1, fmt.Sprintf("max %.0f kN", maxP/1e3))
	pdf.Text(x0, y0+chartHeight+4, fmt.Sprintf("settlement axis, max %.2f mm", maxS*1e3))

	px := func(p models.Point) (float64, float64) {
		return x0 + p.Load/maxP*chartWidth, y0 + p.Settlement/maxS*chartHeight
	}

	pdf.SetDrawColor(200, 30, 30)
	pdf.SetLineWidth(0.4)
	for i := 1; i < len(simulated); i++ {
		xa, ya := px(simulated[i-1])
		xb, yb := px(simulated[i])
		pdf.Line(xa, ya, xb, yb)
	}

	pdf.SetFillColor(30, 30, 200)
	for _, p := range measured {
		x, y := px(p)
		pdf.Circle(x, y, 0.8, "F")
	}
}

func extent(curves ...[]models.Point) (float64, float64) {
	maxS, maxP := 0.0, 0.0
	for _, c := range curves {
		for _, p := range c {
			maxS = math.Max(maxS, math.Abs(p.Settlement))
			maxP = math.Max(maxP, math.Abs(p.Load))
		}
	}
	if maxS == 0 {
		maxS = 1
	}
	if maxP == 0 {
		maxP = 1
	}
	return maxS, maxP
}
