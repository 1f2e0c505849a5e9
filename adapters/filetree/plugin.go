package filetree

import (
	"context"
	"errors"

	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/plugin"
	"github.com/artpar/dataforge/domain/names"
)

// Tag identifies the directory tree plugin.
var Tag = plugin.Tag{Group: "df", Name: "filetree"}

var dirName = names.FromBodies("dir")

// Plugin serves the directory named by its "dir" meta value. The tree is
// loaded when the plugin attaches.
type Plugin struct {
	plugin.Base
	tree *data.MutableTree[any]
}

// Factory builds filetree plugins.
func Factory() plugin.Factory {
	return plugin.FactoryFunc(Tag, func(ctx *plugin.Context, m meta.Meta) (plugin.Plugin, error) {
		return &Plugin{Base: plugin.Base{PluginTag: Tag, PluginMeta: m}}, nil
	})
}

// Attach loads the tree.
func (p *Plugin) Attach(ctx *plugin.Context) error {
	dir, err := meta.GetString(p.Meta(), dirName, "")
	if err != nil {
		return err
	}
	if dir == "" {
		return errors.New("filetree: dir is not set")
	}
	tree, err := Load(context.Background(), dir, ctx.Logger())
	if err != nil {
		return err
	}
	p.tree = tree
	return p.Base.Attach(ctx)
}

// Tree returns the loaded tree.
func (p *Plugin) Tree() *data.MutableTree[any] { return p.tree }
