package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/export"
	"github.com/sells-group/fusion-cli/internal/model"
)

var (
	runSector        string
	runSubsectors    []string
	runLocation      string
	runCompanies     []string
	runCompaniesFile string
	runCriteriaFile  string
	runMinEmployees  int
	runMaxEmployees  int
	runMinRevenue    float64
	runFormat        string
	runMaxResults    int
	runOutput        string
	runJSON          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, fuse and export company profiles for one set of criteria",
	Example: `  fusion-cli run --sector tecnologia --location SP --max-results 10
  fusion-cli run --companies "Acme Ltda,Beta SA" --format csv
  fusion-cli run --criteria criteria.json --output data/output/acme`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		criteria, err := buildCriteria()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, criteria)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Int("total_found", result.TotalFound),
			zap.Int("total_valid", result.TotalValid),
			zap.String("output", result.OutputLocation),
		)

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		formatRunResult(os.Stdout, result)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runSector, "sector", "", "main sector, e.g. tecnologia")
	f.StringSliceVar(&runSubsectors, "subsector", nil, "sub-sectors (repeatable)")
	f.StringVar(&runLocation, "location", "", "comma-separated states (two letters) or cities")
	f.StringSliceVar(&runCompanies, "companies", nil, "company names to collect (comma-separated)")
	f.StringVar(&runCompaniesFile, "companies-file", "", "xlsx or csv file listing companies")
	f.StringVar(&runCriteriaFile, "criteria", "", "JSON criteria file; flags add to it")
	f.IntVar(&runMinEmployees, "min-employees", 0, "minimum headcount")
	f.IntVar(&runMaxEmployees, "max-employees", 0, "maximum headcount")
	f.Float64Var(&runMinRevenue, "min-revenue", 0, "minimum annual revenue in BRL")
	f.StringVar(&runFormat, "format", "", "output format: excel, csv or json")
	f.IntVar(&runMaxResults, "max-results", 0, "maximum records to export")
	f.StringVar(&runOutput, "output", "", "output file path")
	f.BoolVar(&runJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(runCmd)
}

// buildCriteria merges the criteria file, if any, with the command flags.
// Normalization and validation happen when the run starts.
func buildCriteria() (*model.Criteria, error) {
	var c model.Criteria
	if runCriteriaFile != "" {
		data, err := os.ReadFile(runCriteriaFile)
		if err != nil {
			return nil, eris.Wrap(err, "read criteria file")
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, eris.Wrapf(model.ErrInvalidCriteria, "decode %s: %v", runCriteriaFile, err)
		}
	}

	if runSector != "" {
		c.Sector.Main = runSector
	}
	c.Sector.Sub = append(c.Sector.Sub, runSubsectors...)

	states, cities := splitLocation(runLocation)
	c.Location.States = append(c.Location.States, states...)
	c.Location.Cities = append(c.Location.Cities, cities...)

	for _, name := range runCompanies {
		c.Companies = append(c.Companies, model.CompanyRef{Name: name})
	}
	if runCompaniesFile != "" {
		refs, err := export.ReadCompanies(runCompaniesFile)
		if err != nil {
			return nil, eris.Wrap(err, "read companies file")
		}
		c.Companies = append(c.Companies, refs...)
	}

	if runMinEmployees > 0 || runMaxEmployees > 0 {
		c.Size.Employees = &model.Range{Min: float64(runMinEmployees), Max: float64(runMaxEmployees)}
	}
	if runMinRevenue > 0 {
		c.Size.Revenue = &model.Range{Min: runMinRevenue, Currency: "BRL"}
	}

	if runFormat != "" {
		c.Output.Format = strings.ToLower(runFormat)
	}
	if runMaxResults > 0 {
		c.Output.MaxResults = runMaxResults
	}
	if runOutput != "" {
		c.Output.Path = runOutput
	}
	return &c, nil
}

// splitLocation sorts comma-separated terms into two-letter states and
// cities.
func splitLocation(s string) (states, cities []string) {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case len(part) == 2:
			states = append(states, strings.ToUpper(part))
		default:
			cities = append(cities, part)
		}
	}
	return states, cities
}

// formatRunResult writes a table of exported records and the run totals.
func formatRunResult(out io.Writer, res *model.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tCNPJ\tLOCATION\tSCORE\tSYNTHETIC")
	_, _ = fmt.Fprintln(w, "-------\t----\t--------\t-----\t---------")
	for _, sr := range res.Records {
		rec := sr.Record
		name := rec.Get(model.FieldCompanyName)
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\n",
			name,
			rec.Get(model.FieldCNPJ),
			rec.Get(model.FieldLocation),
			sr.Score.Score,
			len(rec.SyntheticFields()),
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nRun %s: %d found, %d valid, %d discarded, %d patched (%.1fs)\n",
		truncateID(res.RunID), res.TotalFound, res.TotalValid, res.Discarded, res.Patched, res.ElapsedSeconds)
	if res.Synthetic {
		_, _ = fmt.Fprintln(out, "Records are synthetic.")
	}
	if res.OutputLocation != "" {
		_, _ = fmt.Fprintf(out, "Output: %s\n", res.OutputLocation)
	}
	for _, warn := range res.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", warn)
	}
}
