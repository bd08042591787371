package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/caio-sobreiro/pdfpacs/ledger"
	"github.com/caio-sobreiro/pdfpacs/pipeline"
)

func printSummary(s *pipeline.Summary) {
	pterm.Println()
	pterm.DefaultSection.Printfln("Run %s", s.RunID)

	data := pterm.TableData{{"Outcome", "Files"}}
	for _, k := range pipeline.OutcomeKinds {
		if n := s.Counts[k]; n > 0 {
			data = append(data, []string{k.String(), fmt.Sprint(n)})
		}
	}
	data = append(data, []string{"total", fmt.Sprint(s.Total())})
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	if s.Skipped > 0 {
		pterm.Warning.Printfln("%d files left for the next run", s.Skipped)
	}
	if n := s.Failures(); n > 0 {
		pterm.Warning.Printfln("%d files moved to the errors folder", n)
		for _, r := range s.Results {
			if r.Outcome.Failed() {
				pterm.Printfln("  %s  %s  %s", r.File, r.Outcome, r.Reason)
			}
		}
	} else {
		pterm.Success.Printfln("Finished in %s", s.Finished.Sub(s.Started).Round(time.Millisecond))
	}
}

func printHistory(runs []ledger.Run) {
	data := pterm.TableData{{"Run", "Started", "Duration", "Files", "Success", "Duplicate", "Failed"}}
	for _, r := range runs {
		duration := "running"
		if !r.Finished.IsZero() {
			duration = r.Finished.Sub(r.Started).Round(time.Second).String()
		}
		success := r.Counts[pipeline.OutcomeSuccess.String()]
		dup := r.Counts[pipeline.OutcomeDuplicate.String()]
		data = append(data, []string{
			r.ID,
			r.Started.Local().Format("2006-01-02 15:04:05"),
			duration,
			fmt.Sprint(r.Total),
			fmt.Sprint(success),
			fmt.Sprint(dup),
			fmt.Sprint(r.Total - success - dup),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
