package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/dataforge/core/descriptors"
	"github.com/artpar/dataforge/core/formatter"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/domain/names"
)

var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Inspect and convert meta files",
	Long: `Inspect, convert and validate meta files.

The file format is chosen by extension: .json, .yaml/.yml or .cbor.

Examples:
  dataforge meta flatten run.yaml
  dataforge meta get run.yaml solver.steps
  dataforge meta convert run.yaml run.cbor
  dataforge meta validate run.yaml --descriptor run.desc.yaml
  dataforge meta defaults run.desc.yaml`,
}

var metaFlattenCmd = &cobra.Command{
	Use:   "flatten <file>",
	Short: "Print every value with its full name",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetaFlatten,
}

var metaGetCmd = &cobra.Command{
	Use:   "get <file> <name>",
	Short: "Print the item at a name",
	Args:  cobra.ExactArgs(2),
	RunE:  runMetaGet,
}

var metaConvertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Convert a meta file to another format",
	Long: `Convert a meta file. The output format follows the extension of <out>.
Use "-" as <out> to write to stdout in the format given by --to.`,
	Args: cobra.ExactArgs(2),
	RunE: runMetaConvert,
}

var metaValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a meta file against a descriptor",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetaValidate,
}

var metaDefaultsCmd = &cobra.Command{
	Use:   "defaults <descriptor>",
	Short: "Print the defaults declared by a descriptor",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetaDefaults,
}

var (
	convertTo      string
	descriptorFile string
)

func init() {
	rootCmd.AddCommand(metaCmd)

	metaCmd.AddCommand(metaFlattenCmd)
	metaCmd.AddCommand(metaGetCmd)
	metaCmd.AddCommand(metaConvertCmd)
	metaCmd.AddCommand(metaValidateCmd)
	metaCmd.AddCommand(metaDefaultsCmd)

	metaConvertCmd.Flags().StringVar(&convertTo, "to", "json", "codec used when writing to stdout")
	metaValidateCmd.Flags().StringVarP(&descriptorFile, "descriptor", "d", "", "descriptor file (required)")
	metaValidateCmd.MarkFlagRequired("descriptor")
}

// readMetaFile decodes path with the codec matching its extension.
func readMetaFile(path string) (meta.Meta, error) {
	codec, err := metacodec.ForPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := metacodec.Unmarshal(codec, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func readDescriptor(path string) (*descriptors.NodeDescriptor, error) {
	m, err := readMetaFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	return descriptors.FromMeta(m), nil
}

func runMetaFlatten(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	m, err := readMetaFile(args[0])
	if err != nil {
		return err
	}
	return f.FormatMeta(cmd.OutOrStdout(), m, opts)
}

func runMetaGet(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	m, err := readMetaFile(args[0])
	if err != nil {
		return err
	}
	name, err := names.Parse(args[1])
	if err != nil {
		return err
	}

	switch item := meta.Get(m, name).(type) {
	case nil:
		return fmt.Errorf("no item at %s", name)
	case meta.ValueItem:
		fmt.Fprintln(cmd.OutOrStdout(), item.Value.String())
		return nil
	case meta.NodeItem:
		return f.FormatMeta(cmd.OutOrStdout(), item.Node, opts)
	default:
		return fmt.Errorf("unexpected item %T", item)
	}
}

func runMetaConvert(cmd *cobra.Command, args []string) error {
	m, err := readMetaFile(args[0])
	if err != nil {
		return err
	}

	if args[1] == "-" {
		codec, err := metacodec.ByName(convertTo)
		if err != nil {
			return err
		}
		return codec.Encode(cmd.OutOrStdout(), m)
	}

	codec, err := metacodec.ForPath(args[1])
	if err != nil {
		return err
	}
	raw, err := metacodec.Marshal(codec, m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", args[1], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %d values)\n", args[1], codec.Name(), len(meta.Flatten(m)))
	return nil
}

func runMetaValidate(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	m, err := readMetaFile(args[0])
	if err != nil {
		return err
	}
	d, err := readDescriptor(descriptorFile)
	if err != nil {
		return err
	}

	result := descriptors.Validate(d, m)
	if result.Valid() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s Valid\n", checkMark)
		return nil
	}

	rows := formatter.Rows{Columns: []string{"name", "reason", "message"}}
	for _, v := range result.Violations {
		rows.Records = append(rows.Records, []string{v.Name.String(), v.Reason, v.Message})
	}
	if err := f.FormatRows(cmd.OutOrStdout(), rows, opts); err != nil {
		return err
	}
	return fmt.Errorf("%s: %d violations", args[0], len(result.Violations))
}

func runMetaDefaults(cmd *cobra.Command, args []string) error {
	f, opts, err := output()
	if err != nil {
		return err
	}
	d, err := readDescriptor(args[0])
	if err != nil {
		return err
	}
	return f.FormatMeta(cmd.OutOrStdout(), descriptors.DefaultMeta(d), opts)
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
