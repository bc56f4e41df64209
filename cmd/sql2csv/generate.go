package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sql2csv/internal/renderer"
)

func newGenerateCmd(a *app) *cobra.Command {
	var pkg string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "为每张表生成 Go 结构体",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dbs, err := a.databases(ctx)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"Database", "File"}}
			for _, d := range dbs {
				db, err := d.Open(ctx, a.cfg.Database.Timeout)
				if err != nil {
					return err
				}
				files, err := renderer.GenerateStructs(ctx, db, pkg)
				db.Close()
				if err != nil {
					return err
				}

				dir := filepath.Join(a.cfg.Export.OutputDir, d.Name)
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
				names := make([]string, 0, len(files))
				for name := range files {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					path := filepath.Join(dir, name)
					if err := os.WriteFile(path, files[name], 0644); err != nil {
						return err
					}
					data = append(data, []string{d.Name, path})
				}
			}
			if len(data) > 1 {
				return a.renderTable(data)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pkg, "package", renderer.DefaultPackage, "生成代码的包名")
	return cmd
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "列出路径下的数据库",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbs, err := a.databases(cmd.Context())
			if err != nil || len(dbs) == 0 {
				return err
			}
			data := pterm.TableData{{"Name", "Path", "Size"}}
			for _, d := range dbs {
				size := "-"
				if info, err := os.Stat(d.Path); err == nil {
					size = fmt.Sprintf("%d", info.Size())
				}
				data = append(data, []string{d.Name, d.Path, size})
			}
			return a.renderTable(data)
		},
	}
}
