package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/dataforge/core/descriptors"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	outputFormat = "table"
	noHeader = false
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	convertTo = "json"
	dataCodec = "json"
	storeCodec = "yaml"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const runYAML = "solver:\n  name: rk4\n  steps: 100\n"

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dataforge dev")
}

func TestMetaFlatten(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", runYAML)

	out, err := execute(t, "meta", "flatten", path)
	require.NoError(t, err)
	assert.Contains(t, out, "solver.name")
	assert.Contains(t, out, "rk4")
	assert.Contains(t, out, "solver.steps")
}

func TestMetaGet(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", runYAML)

	out, err := execute(t, "meta", "get", path, "solver.steps")
	require.NoError(t, err)
	assert.Equal(t, "100\n", out)

	_, err = execute(t, "meta", "get", path, "solver.missing")
	assert.Error(t, err)
}

func TestMetaConvert(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "run.yaml", runYAML)
	outPath := filepath.Join(dir, "run.json")

	_, err := execute(t, "meta", "convert", in, outPath)
	require.NoError(t, err)

	want, err := readMetaFile(in)
	require.NoError(t, err)
	got, err := readMetaFile(outPath)
	require.NoError(t, err)
	assert.True(t, meta.Equal(want, got))

	out, err := execute(t, "meta", "convert", in, "-", "--to", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"steps": 100`)
}

func writeDescriptor(t *testing.T, dir string) string {
	t.Helper()
	d := descriptors.New(func(d *descriptors.NodeDescriptor) {
		d.Node("solver", func(n *descriptors.NodeDescriptor) {
			n.Value("steps", func(v *descriptors.ValueDescriptor) {
				v.SetType(values.TypeNumber)
				v.SetDefault(10)
			})
			n.Value("name", func(v *descriptors.ValueDescriptor) {
				v.SetAllowedValues("euler", "rk4")
			})
		})
	})
	raw, err := metacodec.Marshal(metacodec.YAML, d.Meta())
	require.NoError(t, err)
	return writeFile(t, dir, "run.desc.yaml", string(raw))
}

func TestMetaValidate(t *testing.T) {
	dir := t.TempDir()
	desc := writeDescriptor(t, dir)
	good := writeFile(t, dir, "good.yaml", runYAML)
	bad := writeFile(t, dir, "bad.yaml", "solver:\n  name: midpoint\n  steps: many\n")

	out, err := execute(t, "meta", "validate", good, "--descriptor", desc)
	require.NoError(t, err)
	assert.Contains(t, out, "Valid")

	out, err = execute(t, "meta", "validate", bad, "--descriptor", desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 violations")
	assert.Contains(t, out, "solver.name")
	assert.Contains(t, out, "solver.steps")
}

func TestMetaDefaults(t *testing.T) {
	desc := writeDescriptor(t, t.TempDir())

	out, err := execute(t, "meta", "defaults", desc, "-o", "json")
	require.NoError(t, err)
	m, err := metacodec.Unmarshal(metacodec.JSON, []byte(out))
	require.NoError(t, err)
	steps, err := meta.GetInt(m, names.MustParse("solver.steps"), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, steps)
}

func TestDataListAndGet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inputs/params.json", `{"gain": 2}`)
	writeFile(t, dir, "inputs/blob.bin", "raw-bytes")

	out, err := execute(t, "data", "list", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "inputs.params")
	assert.Contains(t, out, "inputs.blob")
	assert.Contains(t, out, "raw")

	out, err = execute(t, "data", "get", dir, "inputs.params", "--codec", "yaml")
	require.NoError(t, err)
	assert.Equal(t, "gain: 2", strings.TrimSpace(out))

	out, err = execute(t, "data", "get", dir, "inputs.blob")
	require.NoError(t, err)
	assert.Equal(t, "raw-bytes", out)

	_, err = execute(t, "data", "get", dir, "inputs.nothing")
	assert.Error(t, err)
}

func TestStoreCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATAFORGE_DATABASE_DRIVER", "sqlite")
	t.Setenv("DATAFORGE_DATABASE_DSN", filepath.Join(dir, "store.db"))
	path := writeFile(t, dir, "run.yaml", runYAML)

	out, err := execute(t, "store", "save", "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved run")

	out, err = execute(t, "store", "list", "run", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"count": 1`)

	out, err = execute(t, "store", "latest", "run", "--codec", "json")
	require.NoError(t, err)
	m, err := metacodec.Unmarshal(metacodec.JSON, []byte(out))
	require.NoError(t, err)
	name, _ := meta.GetString(m, names.MustParse("solver.name"), "")
	assert.Equal(t, "rk4", name)

	_, err = execute(t, "store", "delete", "no-such-id")
	assert.Error(t, err)
}

func TestUnknownOutputFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run.yaml", runYAML)
	_, err := execute(t, "meta", "flatten", path, "-o", "xml")
	assert.Error(t, err)
}
