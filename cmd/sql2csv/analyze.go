package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sql2csv/internal/adapter"
	"sql2csv/internal/analyzer"
)

type analyzeFlags struct {
	table  string
	column string
	json   bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "计算表或列的统计信息",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.table, "table", "", "表名")
	cmd.Flags().StringVar(&f.column, "column", "", "只分析该列")
	cmd.Flags().BoolVar(&f.json, "json", false, "以 JSON 输出")
	cmd.MarkFlagRequired("table")
	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, f analyzeFlags) error {
	ctx := cmd.Context()
	dbs, err := a.databases(ctx)
	if err != nil {
		return err
	}

	found := false
	for _, d := range dbs {
		db, err := d.Open(ctx, a.cfg.Database.Timeout)
		if err != nil {
			return err
		}
		stats := analyzer.NewStatisticsAnalyzer(db, a.logger,
			analyzer.WithTopValues(a.cfg.Analysis.TopValues),
			analyzer.WithQualityWeights(a.cfg.QualityWeights()),
		)

		var result any
		if f.column != "" {
			result, err = stats.AnalyzeColumn(ctx, f.table, f.column)
		} else {
			result, err = stats.AnalyzeTable(ctx, f.table)
		}
		db.Close()
		if errors.Is(err, analyzer.ErrUnknownTable) {
			a.logger.Debug().Str("database", d.Name).Str("table", f.table).Msg("Table not in database")
			continue
		}
		if err != nil {
			return err
		}
		found = true

		if f.json {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, string(data))
			continue
		}
		if err := a.printAnalysis(d.Name, result); err != nil {
			return err
		}
	}
	if !found {
		return errors.Wrapf(analyzer.ErrUnknownTable, "%q", f.table)
	}
	return nil
}

func (a *app) printAnalysis(database string, result any) error {
	var columns []*analyzer.ColumnAnalysis
	switch r := result.(type) {
	case *analyzer.TableAnalysis:
		s := r.Statistics
		fmt.Fprint(a.out, pterm.Info.Sprintfln("%s.%s: %d rows, %d columns, quality %.2f (%s)",
			database, r.TableName, s.TotalRows, s.TotalColumns, s.DataQualityScore, r.Duration.Round(time.Millisecond)))
		columns = r.Columns
	case *analyzer.ColumnAnalysis:
		columns = []*analyzer.ColumnAnalysis{r}
	}

	data := pterm.TableData{{"Column", "Type", "Nulls", "Unique", "Quality", "Statistics", "Top values"}}
	for _, c := range columns {
		data = append(data, []string{
			c.ColumnName,
			c.DataType,
			fmt.Sprintf("%d (%.2f%%)", c.NullCount, c.NullPercentage),
			fmt.Sprintf("%d (%.2f%%)", c.UniqueCount, c.UniquePercentage),
			fmt.Sprintf("%.2f", c.QualityScore),
			statsSummary(c),
			topSummary(c.TopValues, 3),
		})
	}
	return a.renderTable(data)
}

func statsSummary(c *analyzer.ColumnAnalysis) string {
	var parts []string
	add := func(label string, v *float64) {
		if v != nil {
			parts = append(parts, label+"="+strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	if s, ok := c.Numeric(); ok {
		add("min", s.Min)
		add("max", s.Max)
		add("mean", rounded(s.Mean))
		add("median", s.Median)
		add("sd", rounded(s.StdDev))
	}
	if s, ok := c.Text(); ok {
		if s.MinLength != nil && s.MaxLength != nil {
			parts = append(parts, fmt.Sprintf("len=%d..%d", *s.MinLength, *s.MaxLength))
		}
		add("avg", rounded(s.AvgLength))
	}
	if s, ok := c.DateTime(); ok {
		if s.Min != nil && s.Max != nil {
			parts = append(parts, adapter.FormatTime(*s.Min)+" .. "+adapter.FormatTime(*s.Max))
		}
	}
	return strings.Join(parts, " ")
}

func topSummary(values []analyzer.ValueFrequency, n int) string {
	var parts []string
	for i, v := range values {
		if i == n {
			break
		}
		parts = append(parts, fmt.Sprintf("%s×%d", v.Value, v.Count))
	}
	return strings.Join(parts, ", ")
}

func rounded(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r, _ := strconv.ParseFloat(strconv.FormatFloat(*v, 'f', 3, 64), 64)
	return &r
}
