package data

import (
	"context"
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/dataforge/domain/names"
)

// Flow yields every leaf of tree with its absolute name, depth first in
// pre-order following insertion order: a node's subtree is fully yielded
// before its next sibling.
//
// The sequence is restartable; each range re-reads Items. It stops when
// the consumer breaks or ctx is done, yielding ctx.Err() in the latter
// case. A failing Items call is yielded as the final element.
func Flow[T any](ctx context.Context, tree Tree[T]) iter.Seq2[NamedData[T], error] {
	return func(yield func(NamedData[T], error) bool) {
		_, err := walk(ctx, tree, names.Empty, func(name names.Name, item Item[T]) bool {
			if leaf, ok := item.(Leaf[T]); ok {
				return yield(NamedData[T]{Name: name, Data: leaf.Data}, nil)
			}
			return true
		})
		if err != nil {
			yield(NamedData[T]{}, err)
		}
	}
}

// ItemFlow is like Flow but also yields nodes, each before its subtree.
func ItemFlow[T any](ctx context.Context, tree Tree[T]) iter.Seq2[NamedItem[T], error] {
	return func(yield func(NamedItem[T], error) bool) {
		_, err := walk(ctx, tree, names.Empty, func(name names.Name, item Item[T]) bool {
			return yield(NamedItem[T]{Name: name, Item: item}, nil)
		})
		if err != nil {
			yield(NamedItem[T]{}, err)
		}
	}
}

func walk[T any](ctx context.Context, tree Tree[T], prefix names.Name, visit func(names.Name, Item[T]) bool) (bool, error) {
	items, err := tree.Items(ctx)
	if err != nil {
		if prefix.IsEmpty() {
			return false, err
		}
		return false, fmt.Errorf("list %s: %w", prefix, err)
	}
	for tok, item := range items.All() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		name := prefix.Append(tok)
		if !visit(name, item) {
			return false, nil
		}
		if node, ok := item.(Node[T]); ok {
			cont, err := walk(ctx, node.Tree, name, visit)
			if err != nil || !cont {
				return false, err
			}
		}
	}
	return true, nil
}

// Collect drains Flow into a slice.
func Collect[T any](ctx context.Context, tree Tree[T]) ([]NamedData[T], error) {
	var out []NamedData[T]
	for nd, err := range Flow(ctx, tree) {
		if err != nil {
			return out, err
		}
		out = append(out, nd)
	}
	return out, nil
}

// AwaitAll awaits every leaf of tree concurrently, at most limit at a time
// (no limit when limit <= 0). The first failure cancels the remaining
// awaits and is returned with the leaf name.
func AwaitAll[T any](ctx context.Context, tree Tree[T], limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for nd, err := range Flow(gctx, tree) {
		if err != nil {
			g.Go(func() error { return err })
			break
		}
		g.Go(func() error {
			if _, err := nd.Data.Await(gctx); err != nil {
				return fmt.Errorf("%s: %w", nd.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
