// Package report renders a finished calibration as an xlsx workbook or a PDF summary.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/calibration"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// ErrNoResult is returned when a report is requested before the run finished.
var ErrNoResult = errors.New("report: run has no result")

// Report is everything a rendered report shows.
type Report struct {
	RunID       string
	Case        loadtest.Document
	Result      *calibration.Result
	GeneratedAt time.Time
}

// New builds a report, stamping the generation time.
func New(runID string, doc loadtest.Document, result *calibration.Result) (*Report, error) {
	if result == nil {
		return nil, ErrNoResult
	}
	return &Report{RunID: runID, Case: doc, Result: result, GeneratedAt: time.Now().UTC()}, nil
}

// Title is the heading used in both formats.
func (r *Report) Title() string {
	name := r.Case.Name
	if name == "" {
		name = "load test"
	}
	return fmt.Sprintf("Pile calibration: %s", name)
}

func (r *Report) summaryRows() [][2]string {
	res := r.Result
	rows := [][2]string{
		{"run_id", r.RunID},
		{"case", r.Case.Name},
		{"termination", string(res.Termination)},
		{"reason", res.Reason},
		{"objective", res.Objective},
		{"fitness", formatFloat(res.Fitness)},
		{"evaluations", fmt.Sprintf("%d", res.Evaluations)},
		{"generations", fmt.Sprintf("%d", res.Generations)},
		{"seed", fmt.Sprintf("%d", res.Seed)},
	}
	if !res.StartedAt.IsZero() && !res.FinishedAt.IsZero() {
		rows = append(rows, [2]string{"duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()})
	}
	if res.Polish != nil {
		rows = append(rows,
			[2]string{"polish_status", res.Polish.Status},
			[2]string{"polish_improved", fmt.Sprintf("%t", res.Polish.Improved)},
		)
	}
	return rows
}

// parameters lists the calibrated values in search-space order.
func (r *Report) parameters() []namedValue {
	res := r.Result
	out := make([]namedValue, 0, len(res.Parameters))
	if len(res.Names) == len(res.BestParams) {
		for i, n := range res.Names {
			out = append(out, namedValue{n, res.BestParams[i]})
		}
		return out
	}
	for n, v := range res.Parameters {
		out = append(out, namedValue{n, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

type namedValue struct {
	name  string
	value float64
}

func (r *Report) simulated() []models.Point {
	if r.Result.BestCurve == nil {
		return nil
	}
	return r.Result.BestCurve.Points
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.6g", v)
}
