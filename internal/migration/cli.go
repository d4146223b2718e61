package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 为 chatflow migrate 子命令格式化输出
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建 CLI，默认输出到 stdout
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput 替换输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.output, format, args...)
}

// =============================================================================
// 🔧 变更类命令
// =============================================================================

// change 执行一次 schema 变更并汇报变更后的版本
func (c *CLI) change(ctx context.Context, label, verb string, ops ...func(context.Context) error) error {
	c.printf("%s...\n", label)
	for _, op := range ops {
		if err := op(ctx); err != nil {
			return fmt.Errorf("%s failed: %w", verb, err)
		}
	}
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	c.printf("%s complete. Current version: %d%s\n", capitalize(verb), version, dirtySuffix(dirty))
	return nil
}

// RunUp 执行全部待处理迁移
func (c *CLI) RunUp(ctx context.Context) error {
	return c.change(ctx, "Applying chat schema migrations", "migration", c.migrator.Up)
}

// RunDown 回滚最近一次迁移
func (c *CLI) RunDown(ctx context.Context) error {
	return c.change(ctx, "Rolling back the latest chat schema migration", "rollback", c.migrator.Down)
}

// RunDownAll 回滚全部迁移，chat_rooms 与 chat_messages 都会被删除
func (c *CLI) RunDownAll(ctx context.Context) error {
	return c.change(ctx, "Dropping every chat table", "rollback", c.migrator.DownAll)
}

// RunGoto 迁移到指定版本（向上或向下）
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	return c.change(ctx, fmt.Sprintf("Moving chat schema to version %d", version), "migration",
		func(ctx context.Context) error { return c.migrator.Goto(ctx, version) })
}

// RunSteps 正数向上执行 n 个迁移，负数回滚 -n 个
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	label, verb := fmt.Sprintf("Applying %d chat schema migration(s)", n), "migration"
	if n < 0 {
		label, verb = fmt.Sprintf("Rolling back %d chat schema migration(s)", -n), "rollback"
	}
	return c.change(ctx, label, verb,
		func(ctx context.Context) error { return c.migrator.Steps(ctx, n) })
}

// RunReset 回滚全部迁移后重新执行，会清空聊天记录
func (c *CLI) RunReset(ctx context.Context) error {
	return c.change(ctx, "Resetting database (all chat history will be dropped)", "reset",
		c.migrator.DownAll, c.migrator.Up)
}

// RunForce 强制写入版本号，不执行任何 SQL；用于修复 dirty 状态
func (c *CLI) RunForce(ctx context.Context, version int) error {
	c.printf("Marking chat schema as version %d without running SQL...\n", version)
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	c.printf("Version forced to %d\n", version)
	return nil
}

// =============================================================================
// 🔍 查询类命令
// =============================================================================

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version == 0 {
		c.printf("No migrations applied yet.\n")
		return nil
	}
	c.printf("Current version: %d%s\n", version, dirtySuffix(dirty))
	return nil
}

// RunStatus 以表格列出每个迁移的状态
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	applied := 0
	tw := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n", len(statuses), applied, len(statuses)-applied)
	return nil
}

// RunInfo 打印迁移摘要
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("read info: %w", err)
	}

	tw := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "current version:\t%d%s\n", info.CurrentVersion, dirtySuffix(info.Dirty))
	fmt.Fprintf(tw, "migrations:\t%d total, %d applied, %d pending\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return tw.Flush()
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
