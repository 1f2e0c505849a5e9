package plugin

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
)

// Context is a named scope holding properties, plugin factories and
// loaded plugins. Lookups fall back to the parent context.
type Context struct {
	name       string
	parent     *Context
	registry   *Registry
	properties meta.Meta
	base       zerolog.Logger
	logger     zerolog.Logger

	mu      sync.RWMutex
	plugins []Plugin
	closed  bool
}

// NewRoot creates a context without parent.
func NewRoot(name string, registry *Registry, logger zerolog.Logger) *Context {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Context{
		name:       name,
		registry:   registry,
		properties: meta.Empty,
		base:       logger,
		logger:     logger.With().Str("context", name).Logger(),
	}
}

// Name returns the context name.
func (c *Context) Name() string { return c.name }

// Parent returns the parent context, or nil for a root.
func (c *Context) Parent() *Context { return c.parent }

// Logger returns a logger tagged with the context name.
func (c *Context) Logger() zerolog.Logger { return c.logger }

// Registry returns the factories registered on this context.
func (c *Context) Registry() *Registry { return c.registry }

// FindFactoryMatching searches this context and its ancestors.
func (c *Context) FindFactoryMatching(q Tag) (Factory, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if f, ok := ctx.registry.FindFactoryMatching(q); ok {
			return f, true
		}
	}
	return nil, false
}

// Plugin returns a loaded plugin matching q, searching ancestors too.
func (c *Context) Plugin(q Tag) (Plugin, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		ctx.mu.RLock()
		for _, p := range ctx.plugins {
			if p.Tag().Matches(q) {
				ctx.mu.RUnlock()
				return p, true
			}
		}
		ctx.mu.RUnlock()
	}
	return nil, false
}

// Plugins lists the plugins loaded directly into this context.
func (c *Context) Plugins() []Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Plugin, len(c.plugins))
	copy(out, c.plugins)
	return out
}

// Property looks name up in this context's properties, then in the parent.
func (c *Context) Property(name names.Name) meta.Item {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if item := meta.Get(ctx.properties, name); item != nil {
			return item
		}
	}
	return nil
}

// Properties returns the properties set on this context only.
func (c *Context) Properties() meta.Meta { return c.properties }

// Load builds a plugin with f and attaches it.
func (c *Context) Load(f Factory, m meta.Meta) (Plugin, error) {
	if m == nil {
		m = meta.Empty
	}
	p, err := f.Build(c, m)
	if err != nil {
		return nil, fmt.Errorf("build plugin %s: %w", f.Tag(), err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("plugin: context is closed")
	}
	for _, existing := range c.plugins {
		if existing.Tag() == p.Tag() {
			c.mu.Unlock()
			return nil, fmt.Errorf("plugin %s already loaded in %s", p.Tag(), c.name)
		}
	}
	c.plugins = append(c.plugins, p)
	c.mu.Unlock()

	if err := p.Attach(c); err != nil {
		c.mu.Lock()
		c.plugins = slices.DeleteFunc(c.plugins, func(existing Plugin) bool { return existing == p })
		c.mu.Unlock()
		return nil, fmt.Errorf("attach plugin %s: %w", p.Tag(), err)
	}
	c.logger.Debug().Str("plugin", p.Tag().String()).Msg("plugin loaded")
	return p, nil
}

// Close detaches every plugin in reverse load order.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	plugins := c.plugins
	c.plugins = nil
	c.mu.Unlock()

	for i := len(plugins) - 1; i >= 0; i-- {
		plugins[i].Detach()
	}
}

type pluginRequest struct {
	tag     Tag
	factory Factory
	meta    meta.Meta
}

// ContextBuilder assembles a child context.
type ContextBuilder struct {
	parent     *Context
	name       string
	properties *meta.Builder
	registry   *Registry
	requests   []pluginRequest
}

// NewContextBuilder starts a child of parent. parent must not be nil.
func NewContextBuilder(parent *Context, name string) *ContextBuilder {
	if parent == nil {
		panic("plugin: a context builder needs a parent context")
	}
	if name == "" {
		name = "@anonymous"
	}
	return &ContextBuilder{
		parent:     parent,
		name:       name,
		properties: meta.NewBuilder(),
		registry:   NewRegistry(),
	}
}

// Property sets a context property.
func (b *ContextBuilder) Property(name string, v any) *ContextBuilder {
	b.properties.Put(name, v)
	return b
}

// Factory registers a factory on the new context.
func (b *ContextBuilder) Factory(f Factory) *ContextBuilder {
	if err := b.registry.Register(f); err != nil {
		panic(err)
	}
	return b
}

// Plugin requests a plugin resolved by tag at Build time.
func (b *ContextBuilder) Plugin(tag Tag, m meta.Meta) *ContextBuilder {
	b.requests = append(b.requests, pluginRequest{tag: tag, meta: m})
	return b
}

// PluginFactory requests a plugin built by an explicit factory.
func (b *ContextBuilder) PluginFactory(f Factory, m meta.Meta) *ContextBuilder {
	b.requests = append(b.requests, pluginRequest{tag: f.Tag(), factory: f, meta: m})
	return b
}

// Build creates the context and loads the requested plugins in order.
// An unresolvable tag fails with ErrUnknownPlugin.
func (b *ContextBuilder) Build() (*Context, error) {
	ctx := &Context{
		name:       b.name,
		parent:     b.parent,
		registry:   b.registry,
		properties: b.properties.Seal(),
		base:       b.parent.base,
		logger:     b.parent.base.With().Str("context", b.name).Logger(),
	}
	for _, req := range b.requests {
		f := req.factory
		if f == nil {
			found, ok := ctx.FindFactoryMatching(req.tag)
			if !ok {
				ctx.Close()
				return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, req.tag)
			}
			f = found
		}
		if _, err := ctx.Load(f, req.meta); err != nil {
			ctx.Close()
			return nil, err
		}
	}
	return ctx, nil
}
