package main

import (
	"fmt"
	"os"

	"github.com/go-faster/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sql2csv/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "查看或初始化配置",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "输出生效的配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, string(data))
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "写出默认配置文件",
		// 目标文件可能还不存在，不读取配置
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				path = config.DefaultFileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprint(a.out, pterm.Success.Sprintfln("Wrote %s", path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "覆盖已有文件")

	env := &cobra.Command{
		Use:   "env",
		Short: "列出支持的环境变量",
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := config.Usage()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, usage)
			return nil
		},
	}

	cmd.AddCommand(show, initCmd, env)
	return cmd
}
