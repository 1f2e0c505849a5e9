package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/dataforge/adapters/sqlite"
	"github.com/artpar/dataforge/config"
	"github.com/artpar/dataforge/core/formatter"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/ports"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage meta snapshots",
	Long: `Manage meta snapshots stored in the database.

Examples:
  dataforge store save run run.yaml
  dataforge store list run
  dataforge store load <id> --codec yaml
  dataforge store latest run
  dataforge store delete <id>`,
}

var storeSaveCmd = &cobra.Command{
	Use:   "save <name> <file>",
	Short: "Store a meta file as a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE:  runStoreSave,
}

var storeLoadCmd = &cobra.Command{
	Use:   "load <id>",
	Short: "Print a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreLoad,
}

var storeLatestCmd = &cobra.Command{
	Use:   "latest <name>",
	Short: "Print the newest snapshot of a name",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreLatest,
}

var storeListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List snapshots, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStoreList,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreDelete,
}

var storeCodec string

func init() {
	rootCmd.AddCommand(storeCmd)

	storeCmd.AddCommand(storeSaveCmd)
	storeCmd.AddCommand(storeLoadCmd)
	storeCmd.AddCommand(storeLatestCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeDeleteCmd)

	storeLoadCmd.Flags().StringVar(&storeCodec, "codec", "yaml", "output codec (json, yaml, cbor)")
	storeLatestCmd.Flags().StringVar(&storeCodec, "codec", "yaml", "output codec (json, yaml, cbor)")
}

// openStore opens the snapshot database named by the config.
func openStore(ctx context.Context) (*sqlite.MetaStore, func(), error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != "sqlite" {
		return nil, nil, fmt.Errorf("store commands need the sqlite driver, config uses %q", cfg.Database.Driver)
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return sqlite.NewMetaStore(db), func() { db.Close() }, nil
}

func runStoreSave(cmd *cobra.Command, args []string) error {
	m, err := readMetaFile(args[1])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	snap, err := store.Save(ctx, args[0], m)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s as %s (%d values)\n", checkMark, snap.Name, snap.ID, snap.Values)
	return nil
}

func runStoreLoad(cmd *cobra.Command, args []string) error {
	return printSnapshot(cmd, func(ctx context.Context, s ports.MetaStore) (ports.Snapshot, error) {
		return s.Get(ctx, args[0])
	})
}

func runStoreLatest(cmd *cobra.Command, args []string) error {
	return printSnapshot(cmd, func(ctx context.Context, s ports.MetaStore) (ports.Snapshot, error) {
		return s.Latest(ctx, args[0])
	})
}

func printSnapshot(cmd *cobra.Command, find func(context.Context, ports.MetaStore) (ports.Snapshot, error)) error {
	codec, err := metacodec.ByName(storeCodec)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	snap, err := find(ctx, store)
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("snapshot not found")
	}
	if err != nil {
		return err
	}
	return codec.Encode(cmd.OutOrStdout(), snap.Meta)
}

func runStoreList(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	var name string
	if len(args) == 1 {
		name = args[0]
	}
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	snaps, err := store.List(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	rows := formatter.Rows{Columns: []string{"id", "name", "values", "created"}}
	for _, s := range snaps {
		rows.Records = append(rows.Records, []string{
			s.ID, s.Name, strconv.Itoa(s.Values), s.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return f.FormatRows(cmd.OutOrStdout(), rows, opts)
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Delete(ctx, args[0]); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("snapshot not found: %s", args[0])
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %s\n", checkMark, args[0])
	return nil
}
