package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lucheng0127/athena/internal/console"
)

// options 全局命令行参数
type options struct {
	server  string
	verbose bool
}

// newRootCmd 创建根命令
func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "athena-cli",
		Short: "Operate Athena callbacks",
		Long: `Operate Athena callbacks through the server API.

Run without a subcommand to open the interactive console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), opts)
		},
	}

	server := os.Getenv("ATHENA_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "Athena server URL")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newConsoleCmd(opts))
	cmd.AddCommand(newTaskCmd(opts))
	cmd.AddCommand(newCallbacksCmd(opts))
	cmd.AddCommand(newCommandsCmd(opts))

	return cmd
}

func newConsoleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the interactive console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), opts)
		},
	}
}

func newTaskCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:     "task CALLBACK_ID COMMAND [PARAMS...]",
		Short:   "Task a callback and wait for its output",
		Example: `  athena-cli task 0a1b2c3d4e5f uptime`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c := newConsole(cmd, opts)
			return c.Task(ctx, args[0], args[1], strings.Join(args[2:], " "))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the task result")
	return cmd
}

func newCallbacksCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "callbacks",
		Short: "List callbacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newConsole(cmd, opts).Execute(cmd.Context(), "callbacks")
		},
	}
}

func newCommandsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List loadable commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newConsole(cmd, opts).Execute(cmd.Context(), "commands")
		},
	}
}

// runConsole 打开交互式操作台，收到信号时退出
func runConsole(ctx context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	c := console.New(console.NewClient(opts.server), os.Stdout, newLogger(opts.verbose))
	return c.Run(ctx, historyFile())
}

func newConsole(cmd *cobra.Command, opts *options) *console.Console {
	return console.New(console.NewClient(opts.server), cmd.OutOrStdout(), newLogger(opts.verbose))
}

// historyFile 操作台历史记录文件
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".athena_history")
}

// newLogger 创建输出到 stderr 的 logger
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stderr"}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
