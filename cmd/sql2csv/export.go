package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sql2csv/internal/config"
	"sql2csv/internal/export"
)

// errExportFailed 至少一张表导出失败
var errExportFailed = errors.New("export failed")

type exportFlags struct {
	delimiter string
	headers   bool
	tables    string
	encoding  string
}

func newExportCmd(a *app) *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出所有表为 CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "字段分隔符 (tab/semicolon/...)")
	cmd.Flags().BoolVar(&f.headers, "headers", true, "输出表头")
	cmd.Flags().StringVar(&f.tables, "tables", "", "只导出这些表，逗号或分号分隔")
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "输出编码")
	return cmd
}

func (a *app) runExport(cmd *cobra.Command, f exportFlags) error {
	ctx := cmd.Context()

	encName := a.cfg.Export.Encoding
	if f.encoding != "" {
		encName = f.encoding
	}
	enc, err := export.LookupEncoding(encName)
	if err != nil {
		return err
	}

	opts := export.Options{Delimiter: config.ParseDelimiter(f.delimiter)}
	if cmd.Flags().Changed("headers") {
		opts.IncludeHeaders = &f.headers
	}
	if cmd.Flags().Changed("tables") {
		opts.Tables = export.ParseTableList(f.tables)
	}

	dbs, err := a.databases(ctx)
	if err != nil {
		return err
	}

	exporter := export.NewExporter(a.cfg.CSVOptions(), a.logger, export.WithEncoding(enc))
	var all []export.Result
	for _, d := range dbs {
		db, err := d.Open(ctx, a.cfg.Database.Timeout)
		if err != nil {
			return err
		}
		results, err := exporter.ExportDatabase(ctx, db, filepath.Join(a.cfg.Export.OutputDir, d.Name), opts)
		db.Close()
		all = append(all, results...)
		if err != nil {
			a.printResults(all)
			return err
		}
	}

	a.printResults(all)
	return exportError(export.Summarize(all))
}

func (a *app) printResults(results []export.Result) {
	if len(results) == 0 {
		return
	}
	data := pterm.TableData{{"Database", "Table", "Rows", "Duration", "Status"}}
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = r.Error
		}
		data = append(data, []string{r.DatabaseName, r.TableName, fmt.Sprint(r.RowCount), r.Duration.Round(time.Millisecond).String(), status})
	}
	if err := a.renderTable(data); err != nil {
		a.logger.Error().Err(err).Msg("Render results")
	}

	s := export.Summarize(results)
	msg := fmt.Sprintf("Exported %d of %d tables, %d rows in %s", s.Succeeded, s.Tables, s.Rows, s.Duration.Round(time.Millisecond))
	if s.Failed > 0 {
		fmt.Fprint(a.out, pterm.Warning.Sprintln(msg))
		return
	}
	fmt.Fprint(a.out, pterm.Success.Sprintln(msg))
}

// exportError 有失败的表时返回错误，使进程以非零状态退出
func exportError(s export.Summary) error {
	if s.Failed == 0 {
		return nil
	}
	return errors.Wrapf(errExportFailed, "%d of %d tables failed", s.Failed, s.Tables)
}
