package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/lucheng0127/athena/internal/agent/info"
	"github.com/lucheng0127/athena/internal/model"
)

// ErrExit 用户请求退出
var ErrExit = errors.New("exit requested")

const defaultPrompt = "athena> "

// Console 交互式操作台
type Console struct {
	client       *Client
	out          io.Writer
	logger       *zap.Logger
	current      string
	pollInterval time.Duration
	setPrompt    func(string)
}

// Option 操作台配置项
type Option func(*Console)

// WithPollInterval 设置任务结果轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(c *Console) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New 创建操作台
func New(client *Client, out io.Writer, logger *zap.Logger, opts ...Option) *Console {
	c := &Console{
		client:       client,
		out:          out,
		logger:       logger,
		pollInterval: time.Second,
		setPrompt:    func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current 当前选中的 callback
func (c *Console) Current() string {
	return c.current
}

// Run 读取输入循环，直到 exit、EOF 或 ctx 取消
func (c *Console) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          defaultPrompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          c.out,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	c.setPrompt = rl.SetPrompt

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			fmt.Fprintln(c.out, "Use 'exit' or 'quit' to leave the console.")
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			fmt.Fprintln(c.out, "Error:", err)
		}
	}
}

// Execute 执行一行输入
func (c *Console) Execute(ctx context.Context, line string) error {
	name, rest := splitCommand(line)
	if name == "" {
		return nil
	}
	args := parseArgs(rest)

	switch name {
	case "help":
		c.printHelp()
		return nil
	case "exit", "quit":
		return ErrExit
	case "callbacks":
		return c.listCallbacks(ctx)
	case "use":
		if len(args) != 1 {
			return errors.New("usage: use <callback-id>")
		}
		return c.use(ctx, args[0])
	case "commands":
		return c.listCommands(ctx)
	case "tasks":
		if c.current == "" {
			return errors.New("no callback selected, run 'use <callback-id>' first")
		}
		return c.listTasks(ctx)
	default:
		if c.current == "" {
			return errors.New("no callback selected, run 'use <callback-id>' first")
		}
		return c.Task(ctx, c.current, name, rest)
	}
}

// Task 下发任务并等待结果输出
func (c *Console) Task(ctx context.Context, callbackID, name, params string) error {
	task, err := c.client.CreateTask(ctx, callbackID, name, params)
	if err != nil {
		return err
	}

	c.logger.Debug("task submitted",
		zap.String("task_id", task.ID),
		zap.String("callback_id", callbackID),
		zap.String("command", name),
	)
	fmt.Fprintf(c.out, "[*] task %s submitted\n", task.ID)

	task, err = c.client.WaitTask(ctx, task.ID, c.pollInterval)
	if err != nil {
		return err
	}

	c.printTaskResult(task)
	return nil
}

// printTaskResult 输出任务结果
func (c *Console) printTaskResult(task *model.Task) {
	if task.Status == model.TASK_ERROR {
		fmt.Fprintf(c.out, "[!] task %s failed\n", task.ID)
	} else {
		fmt.Fprintf(c.out, "[+] task %s completed\n", task.ID)
	}
	if task.Output != "" {
		fmt.Fprintln(c.out, strings.TrimRight(task.Output, "\n"))
	}
}

// use 选中 callback
func (c *Console) use(ctx context.Context, id string) error {
	callbacks, err := c.client.Callbacks(ctx)
	if err != nil {
		return err
	}

	for _, cb := range callbacks {
		if cb.ID == id {
			c.current = id
			c.setPrompt(fmt.Sprintf("athena [%s]> ", id))
			fmt.Fprintf(c.out, "[*] using callback %s\n", id)
			return nil
		}
	}

	return fmt.Errorf("callback not found: %s", id)
}

func (c *Console) listCallbacks(ctx context.Context) error {
	callbacks, err := c.client.Callbacks(ctx)
	if err != nil {
		return err
	}
	if len(callbacks) == 0 {
		fmt.Fprintln(c.out, "no callbacks")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOSTNAME\tIP\tUSER\tPID\tLAST CHECKIN")
	for _, cb := range callbacks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s ago\n",
			cb.ID, cb.Hostname, cb.IP, cb.User, cb.PID,
			info.FormatUptime(time.Since(cb.LastCheckin)),
		)
	}
	return w.Flush()
}

func (c *Console) listCommands(ctx context.Context) error {
	descriptors, err := c.client.Commands(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tUSAGE\tDESCRIPTION")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.HelpCmd, d.Description)
	}
	return w.Flush()
}

func (c *Console) listTasks(ctx context.Context) error {
	tasks, err := c.client.CallbackTasks(ctx, c.current)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(c.out, "no tasks")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMMAND\tSTATUS\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Command, t.Status, t.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `Console commands:
  callbacks          list callbacks
  use <callback-id>  select a callback to task
  commands           list loadable commands
  tasks              list tasks of the selected callback
  help               show this help
  exit, quit         leave the console

Any other input is sent as a task to the selected callback, e.g. "uptime".
`)
}
