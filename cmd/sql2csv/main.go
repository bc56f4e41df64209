package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sql2csv/internal/config"
	"sql2csv/internal/discovery"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprint(os.Stderr, pterm.Error.Sprintln(err))
		stop()
		os.Exit(1)
	}
}

// app 命令共享的状态
type app struct {
	out    io.Writer
	cfg    *config.Config
	logger zerolog.Logger

	configPath string
	path       string
	output     string
	logLevel   string
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "sql2csv",
		Short:         "SQLite 导出与结构分析工具",
		Long:          "将 SQLite 数据库的表导出为 CSV，生成结构报告、列统计和 Go 结构体",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "配置文件 (默认 ./"+config.DefaultFileName+")")
	flags.StringVar(&a.path, "path", "", "数据库目录或单个数据库文件")
	flags.StringVar(&a.output, "output", "", "输出目录")
	flags.StringVar(&a.logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")

	root.AddCommand(
		newExportCmd(a),
		newSchemaCmd(a),
		newGenerateCmd(a),
		newDiscoverCmd(a),
		newAnalyzeCmd(a),
		newConfigCmd(a),
	)
	return root
}

// load 读取配置并应用命令行覆盖
func (a *app) load(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultFileName); err == nil {
			path = config.DefaultFileName
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("path") {
		cfg.Database.Path = a.path
	}
	if flags.Changed("output") {
		cfg.Export.OutputDir = a.output
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}

	a.cfg = cfg
	a.logger = config.NewLogger(cfg.Log)
	return nil
}

// databases 发现配置路径下的数据库
func (a *app) databases(ctx context.Context) ([]discovery.Database, error) {
	dbs, err := discovery.Discover(ctx, a.cfg.Database.Path, a.logger)
	if err != nil {
		return nil, err
	}
	if len(dbs) == 0 {
		fmt.Fprint(a.out, pterm.Warning.Sprintfln("No databases found in %s", a.cfg.Database.Path))
	}
	return dbs, nil
}

// renderTable 输出带表头的表格
func (a *app) renderTable(data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "render table")
	}
	fmt.Fprintln(a.out, s)
	return nil
}
