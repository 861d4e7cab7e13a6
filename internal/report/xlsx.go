package report

import (
	"io"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names
const (
	SheetSummary    = "summary"
	SheetParameters = "parameters"
	SheetCurves     = "curves"
	SheetHistory    = "history"
)

// WriteWorkbook writes the summary, calibrated parameters, measured and
// simulated curves, and the per-generation history.
func (r *Report) WriteWorkbook(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return err
	}
	rows := [][]any{{"key", "value"}}
	for _, kv := range r.summaryRows() {
		rows = append(rows, []any{kv[0], kv[1]})
	}
	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}

	rows = [][]any{{"name", "value"}}
	for _, p := range r.parameters() {
		rows = append(rows, []any{p.name, p.value})
	}
	if err := writeSheet(f, SheetParameters, rows); err != nil {
		return err
	}

	rows = [][]any{{"measured_settlement_m", "measured_load_n", "simulated_settlement_m", "simulated_load_n"}}
	measured, simulated := r.Case.Points, r.simulated()
	for i := 0; i < len(measured) || i < len(simulated); i++ {
		row := []any{nil, nil, nil, nil}
		if i < len(measured) {
			row[0], row[1] = measured[i].Settlement, measured[i].Load
		}
		if i < len(simulated) {
			row[2], row[3] = simulated[i].Settlement, simulated[i].Load
		}
		rows = append(rows, row)
	}
	if err := writeSheet(f, SheetCurves, rows); err != nil {
		return err
	}

	rows = [][]any{{"generation", "best_fitness", "population_best", "mean_fitness", "std_dev", "failures", "evaluations", "elapsed_s"}}
	for _, h := range r.Result.History {
		rows = append(rows, []any{h.Generation, h.BestFitness, h.PopulationBest, h.MeanFitness, h.StdDev, h.Failures, h.Evaluations, h.Elapsed.Seconds()})
	}
	if err := writeSheet(f, SheetHistory, rows); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}
