// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// MaxDepth bounds tree depth at load time. Pre-trained trees in this
// domain are shallow; anything deeper is a corrupt asset.
const MaxDepth = 64

// Tree is an immutable, validated decision tree.
//
// Thread Safety: Read-only after Load; safe to share across concurrent
// evaluations with no locking.
type Tree struct {
	root     *Node
	depth    int
	splits   int
	leaves   int
	features []string
}

// Load reads, decodes and validates a tree asset.
//
// Outputs:
//
//	*Tree - The validated tree.
//	error - ErrMalformedTree (or a wrapped decode error) when the asset
//	        is structurally invalid; ErrDegenerateLeaf when any leaf has
//	        (0,0) class counts.
func Load(r io.Reader) (*Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tree asset: %w", err)
	}
	var root Node
	if err := root.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("decode tree asset: %w", err)
	}
	return New(&root)
}

// LoadFile loads a tree asset from a file path.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tree asset %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// New validates a root node and wraps it as a Tree.
func New(root *Node) (*Tree, error) {
	t := &Tree{root: root}
	featureSet := make(map[string]struct{})
	if err := t.validate(root, 1, featureSet); err != nil {
		return nil, err
	}
	for f := range featureSet {
		t.features = append(t.features, f)
	}
	sort.Strings(t.features)
	return t, nil
}

// validate walks the tree checking the structural invariants: every path
// terminates in a leaf, splits have both children and a feature name,
// leaves have defined probabilities, depth is bounded.
func (t *Tree) validate(n *Node, depth int, features map[string]struct{}) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrMalformedTree)
	}
	if depth > MaxDepth {
		return fmt.Errorf("%w: depth exceeds %d", ErrMalformedTree, MaxDepth)
	}
	if depth > t.depth {
		t.depth = depth
	}

	switch n.Kind {
	case KindLeaf:
		t.leaves++
		if n.Classes[0] < 0 || n.Classes[1] < 0 {
			return fmt.Errorf("%w: negative class count", ErrMalformedTree)
		}
		if n.Classes[0] == 0 && n.Classes[1] == 0 {
			return ErrDegenerateLeaf
		}
		return nil
	case KindSplit:
		t.splits++
		if n.Feature == "" {
			return fmt.Errorf("%w: split with empty feature", ErrMalformedTree)
		}
		features[n.Feature] = struct{}{}
		if err := t.validate(n.Left, depth+1, features); err != nil {
			return err
		}
		return t.validate(n.Right, depth+1, features)
	default:
		return fmt.Errorf("%w: unknown node kind %q", ErrMalformedTree, n.Kind)
	}
}

// Depth returns the maximum depth of the tree (root = 1).
func (t *Tree) Depth() int { return t.depth }

// Splits returns the number of split nodes.
func (t *Tree) Splits() int { return t.splits }

// Leaves returns the number of leaf nodes.
func (t *Tree) Leaves() int { return t.leaves }

// Features returns the sorted set of feature names the tree tests.
func (t *Tree) Features() []string {
	out := make([]string, len(t.features))
	copy(out, t.features)
	return out
}

// Evaluate scores a feature vector against the tree.
//
// Description:
//
//	Iterative descent from the root. At each split the record's value
//	for the split feature is compared to the threshold: value <=
//	threshold goes left, otherwise right, and a FeatureObservation is
//	appended to the path. At the leaf the score is
//	positive / (positive + negative).
//
// Inputs:
//
//	features - Feature vector keyed by the tree's feature names.
//
// Outputs:
//
//	score - Risk probability in [0,1].
//	path - One observation per split visited, in visit order.
//	error - ErrMissingFeature if the vector lacks a required feature;
//	        ErrDegenerateLeaf for a (0,0) leaf (unreachable after Load,
//	        kept as a guard for hand-built nodes).
//
// Thread Safety: Safe for concurrent use; the tree is never mutated.
func (t *Tree) Evaluate(features map[string]float64) (float64, []FeatureObservation, error) {
	path := make([]FeatureObservation, 0, t.depth)

	node := t.root
	for node.Kind == KindSplit {
		value, ok := features[node.Feature]
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s", ErrMissingFeature, node.Feature)
		}

		direction := DirectionRight
		next := node.Right
		if value <= node.Threshold {
			direction = DirectionLeft
			next = node.Left
		}

		path = append(path, FeatureObservation{
			Feature:   node.Feature,
			Value:     value,
			Threshold: node.Threshold,
			Direction: direction,
		})
		node = next
	}

	neg, pos := node.Classes[0], node.Classes[1]
	total := neg + pos
	if total == 0 {
		return 0, nil, ErrDegenerateLeaf
	}
	return pos / total, path, nil
}
