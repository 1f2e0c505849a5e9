// Package plugin provides plugin factories and the Context that resolves
// them. There is no global context: every application creates its own
// root with NewRoot and derives children with a ContextBuilder.
package plugin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/dataforge/core/meta"
)

// ErrUnknownPlugin is returned when no factory matches a tag.
var ErrUnknownPlugin = errors.New("plugin: unknown plugin")

// Tag identifies a plugin. Group and Version are optional.
type Tag struct {
	Group   string
	Name    string
	Version string
}

// ParseTag parses "group:name:version", "group:name" or "name".
func ParseTag(s string) (Tag, error) {
	parts := strings.Split(s, ":")
	var t Tag
	switch len(parts) {
	case 1:
		t = Tag{Name: parts[0]}
	case 2:
		t = Tag{Group: parts[0], Name: parts[1]}
	case 3:
		t = Tag{Group: parts[0], Name: parts[1], Version: parts[2]}
	default:
		return Tag{}, fmt.Errorf("plugin: malformed tag %q", s)
	}
	if t.Name == "" {
		return Tag{}, fmt.Errorf("plugin: tag %q has no name", s)
	}
	return t, nil
}

func (t Tag) String() string {
	switch {
	case t.Group == "" && t.Version == "":
		return t.Name
	case t.Version == "":
		return t.Group + ":" + t.Name
	default:
		return t.Group + ":" + t.Name + ":" + t.Version
	}
}

// Matches reports whether t satisfies the query q. Empty group or version
// in q match anything.
func (t Tag) Matches(q Tag) bool {
	if t.Name != q.Name {
		return false
	}
	if q.Group != "" && t.Group != q.Group {
		return false
	}
	if q.Version != "" && t.Version != q.Version {
		return false
	}
	return true
}

// Plugin is a unit of functionality loaded into a Context.
type Plugin interface {
	Tag() Tag
	Meta() meta.Meta
	// Attach is called once the plugin is loaded into ctx.
	Attach(ctx *Context) error
	// Detach is called when the context closes.
	Detach()
}

// Factory builds plugins of one tag.
type Factory interface {
	Tag() Tag
	Build(ctx *Context, m meta.Meta) (Plugin, error)
}

type factoryFunc struct {
	tag   Tag
	build func(ctx *Context, m meta.Meta) (Plugin, error)
}

func (f factoryFunc) Tag() Tag { return f.tag }

func (f factoryFunc) Build(ctx *Context, m meta.Meta) (Plugin, error) {
	return f.build(ctx, m)
}

// FactoryFunc adapts a function to Factory.
func FactoryFunc(tag Tag, build func(ctx *Context, m meta.Meta) (Plugin, error)) Factory {
	return factoryFunc{tag: tag, build: build}
}

// Base is an embeddable Plugin implementation with no-op lifecycle hooks.
type Base struct {
	PluginTag  Tag
	PluginMeta meta.Meta
	Context    *Context
}

func (b *Base) Tag() Tag { return b.PluginTag }

func (b *Base) Meta() meta.Meta {
	if b.PluginMeta == nil {
		return meta.Empty
	}
	return b.PluginMeta
}

func (b *Base) Attach(ctx *Context) error {
	b.Context = ctx
	return nil
}

func (b *Base) Detach() {
	b.Context = nil
}
