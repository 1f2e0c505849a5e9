package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/dataforge/config"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Print changes to a meta file as they happen",
	Long: `Watch a meta file and print every value that changes.

The file is reloaded on write and on SIGHUP. Only the names whose
values actually changed are printed.

Examples:
  dataforge watch run.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	w, err := config.NewMetaWatcher(args[0], zerolog.Nop())
	if err != nil {
		return err
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	w.Config().OnChange(cmd, func(name names.Name, oldItem, newItem meta.Item) {
		fmt.Fprintf(out, "%s %s: %s -> %s\n", time.Now().Format(time.TimeOnly), name, describeItem(oldItem), describeItem(newItem))
	})
	w.OnReload(func(at time.Time, err error) {
		if err != nil {
			fmt.Fprintf(out, "%s %s reload failed: %v\n", at.Format(time.TimeOnly), crossMark, err)
		}
	})

	if err := w.WatchFile(); err != nil {
		return err
	}
	w.WatchSignals()
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", w.Path())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-cmd.Context().Done():
	}
	return nil
}

func describeItem(item meta.Item) string {
	switch it := item.(type) {
	case nil:
		return "-"
	case meta.ValueItem:
		return it.Value.String()
	case meta.NodeItem:
		return fmt.Sprintf("{%d values}", len(meta.Flatten(it.Node)))
	default:
		return fmt.Sprintf("%v", it)
	}
}
