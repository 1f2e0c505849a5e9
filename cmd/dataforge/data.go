package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/dataforge/adapters/filetree"
	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/envelope"
	"github.com/artpar/dataforge/core/formatter"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/domain/names"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Browse a directory as a data tree",
	Long: `Browse a directory as a lazy data tree.

Every regular file is one item named after its path without extension:
inputs/signal.json becomes inputs.signal. Meta files decode to meta,
other files read as raw bytes.

Examples:
  dataforge data list ./runs
  dataforge data get ./runs inputs.signal --codec yaml`,
}

var dataListCmd = &cobra.Command{
	Use:   "list <dir>",
	Short: "List the items of a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataList,
}

var dataGetCmd = &cobra.Command{
	Use:   "get <dir> <name>",
	Short: "Compute one item and write its payload",
	Args:  cobra.ExactArgs(2),
	RunE:  runDataGet,
}

var dataCodec string

func init() {
	rootCmd.AddCommand(dataCmd)

	dataCmd.AddCommand(dataListCmd)
	dataCmd.AddCommand(dataGetCmd)

	dataGetCmd.Flags().StringVar(&dataCodec, "codec", "json", "codec for meta items (json, yaml, cbor)")
}

func runDataList(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	tree, err := filetree.Load(ctx, args[0], zerolog.Nop())
	if err != nil {
		return err
	}

	rows := formatter.Rows{Columns: []string{"name", "format", "size", "file"}}
	for nd, err := range data.Flow(ctx, data.Tree[any](tree)) {
		if err != nil {
			return err
		}
		m := nd.Data.Meta()
		format, _ := meta.GetString(m, names.FromBodies("format"), "")
		size, _ := meta.GetInt(m, names.FromBodies("size"), 0)
		file, _ := meta.GetString(m, names.FromBodies("file"), "")
		rows.Records = append(rows.Records, []string{nd.Name.String(), format, strconv.FormatInt(size, 10), file})
	}
	return f.FormatRows(cmd.OutOrStdout(), rows, opts)
}

func runDataGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tree, err := filetree.Load(ctx, args[0], zerolog.Nop())
	if err != nil {
		return err
	}
	name, err := names.Parse(args[1])
	if err != nil {
		return err
	}
	d, err := data.GetData[any](ctx, tree, name)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("no item at %s", name)
	}

	env, err := itemEnvelope(ctx, d)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	_, err = cmd.OutOrStdout().Write(env.Data)
	return err
}

// itemEnvelope computes d and encodes it: meta items with --codec, raw
// items as they are.
func itemEnvelope(ctx context.Context, d *data.Data[any]) (envelope.Envelope, error) {
	format, _ := meta.GetString(d.Meta(), names.FromBodies("format"), "")
	if format == filetree.FormatRaw {
		raw := data.Map(d, nil, func(ctx context.Context, v any) ([]byte, error) {
			b, _ := v.([]byte)
			return b, nil
		})
		return envelope.ToEnvelope(ctx, raw, rawFormat{})
	}

	codec, err := metacodec.ByName(dataCodec)
	if err != nil {
		return envelope.Envelope{}, err
	}
	m := data.Map(d, nil, func(ctx context.Context, v any) (meta.Meta, error) {
		out, ok := v.(meta.Meta)
		if !ok {
			return nil, fmt.Errorf("item holds %T, not meta", v)
		}
		return out, nil
	})
	return envelope.ToEnvelope(ctx, m, envelope.MetaFormat(codec))
}

type rawFormat struct{}

func (rawFormat) Name() string                  { return "raw" }
func (rawFormat) Read(b []byte) ([]byte, error) { return b, nil }
func (rawFormat) Write(b []byte) ([]byte, error) { return b, nil }
