package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sql2csv/internal/adapter"
	"sql2csv/internal/analyzer"
	"sql2csv/internal/renderer"
)

func newSchemaCmd(a *app) *cobra.Command {
	var (
		format string
		infer  bool
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "输出数据库结构报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := renderer.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			dbs, err := a.databases(ctx)
			if err != nil {
				return err
			}
			for _, d := range dbs {
				db, err := d.Open(ctx, a.cfg.Database.Timeout)
				if err != nil {
					return err
				}
				report, err := a.schemaReport(ctx, db, f, infer)
				db.Close()
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "\n=== Schema Report for %s ===\n", d.Name)
				fmt.Fprintln(a.out, report)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "报告格式 (text/markdown/json/mermaid)")
	cmd.Flags().BoolVar(&infer, "infer", false, "推断未声明的外键关系")
	return cmd
}

func (a *app) schemaReport(ctx context.Context, db *adapter.SQLiteAdapter, format renderer.Format, infer bool) (string, error) {
	if !infer {
		return renderer.GenerateReport(ctx, db, format)
	}
	tables, err := db.GetTables(ctx)
	if err != nil {
		return "", err
	}
	declared, err := db.GetForeignKeys(ctx)
	if err != nil {
		return "", err
	}
	relations, err := analyzer.NewRelationInferer(db, a.logger).InferRelationships(ctx, tables, declared)
	if err != nil {
		return "", err
	}
	return renderer.GenerateReport(ctx, db, format, renderer.WithInferredKeys(inferredKeys(relations)))
}

func inferredKeys(relations []analyzer.InferredRelation) []renderer.InferredKey {
	keys := make([]renderer.InferredKey, len(relations))
	for i, r := range relations {
		keys[i] = renderer.InferredKey{ForeignKey: r.ForeignKey, Confidence: r.Confidence}
	}
	return keys
}
