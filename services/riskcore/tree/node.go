// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tree implements the pre-trained decision tree: asset loading,
// structural validation, and deterministic evaluation.
//
// The tree is supplied as a nested JSON document and is immutable after
// load; a loaded *Tree is safe to share across concurrent evaluations
// without locking.
package tree

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingFeature is returned when the record lacks a feature the
	// tree requires. The source fell through to the right branch here;
	// failing fast was chosen instead - see DESIGN.md.
	ErrMissingFeature = errors.New("missing feature")

	// ErrDegenerateLeaf is returned for a leaf with zero counts in both
	// classes, which has no defined probability.
	ErrDegenerateLeaf = errors.New("degenerate leaf (0/0 class counts)")

	// ErrMalformedTree is returned when the asset fails structural
	// validation.
	ErrMalformedTree = errors.New("malformed decision tree")
)

// Direction is the branch taken at a split.
type Direction string

const (
	// DirectionLeft is taken when value <= threshold.
	DirectionLeft Direction = "left"

	// DirectionRight is taken when value > threshold.
	DirectionRight Direction = "right"
)

// NodeKind discriminates the node union.
type NodeKind string

const (
	KindSplit NodeKind = "split"
	KindLeaf  NodeKind = "leaf"
)

// Node is one node of the decision tree: either a Split or a Leaf,
// discriminated by Kind. Exactly one of the two views is populated.
type Node struct {
	Kind NodeKind

	// Split fields (Kind == KindSplit).
	Feature   string
	Threshold float64
	Left      *Node
	Right     *Node

	// Leaf fields (Kind == KindLeaf). Classes holds the training class
	// counts: [negative, positive].
	Classes [2]float64
}

// nodeJSON is the wire shape of a node in the asset document.
type nodeJSON struct {
	Type      string      `json:"type"`
	Feature   string      `json:"feature,omitempty"`
	Threshold float64     `json:"threshold,omitempty"`
	Left      *nodeJSON   `json:"left,omitempty"`
	Right     *nodeJSON   `json:"right,omitempty"`
	Classes   *[2]float64 `json:"classes,omitempty"`
}

// UnmarshalJSON decodes the tagged union from the asset format.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := fromJSON(&raw)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}

// MarshalJSON encodes the node back into the asset format.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSON(n))
}

func fromJSON(raw *nodeJSON) (*Node, error) {
	switch raw.Type {
	case string(KindSplit):
		if raw.Feature == "" {
			return nil, fmt.Errorf("%w: split with empty feature", ErrMalformedTree)
		}
		if raw.Left == nil || raw.Right == nil {
			return nil, fmt.Errorf("%w: split %q missing a child", ErrMalformedTree, raw.Feature)
		}
		left, err := fromJSON(raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := fromJSON(raw.Right)
		if err != nil {
			return nil, err
		}
		return &Node{
			Kind:      KindSplit,
			Feature:   raw.Feature,
			Threshold: raw.Threshold,
			Left:      left,
			Right:     right,
		}, nil
	case string(KindLeaf):
		if raw.Classes == nil {
			return nil, fmt.Errorf("%w: leaf without classes", ErrMalformedTree)
		}
		return &Node{Kind: KindLeaf, Classes: *raw.Classes}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node type %q", ErrMalformedTree, raw.Type)
	}
}

func toJSON(n *Node) *nodeJSON {
	if n.Kind == KindLeaf {
		classes := n.Classes
		return &nodeJSON{Type: string(KindLeaf), Classes: &classes}
	}
	return &nodeJSON{
		Type:      string(KindSplit),
		Feature:   n.Feature,
		Threshold: n.Threshold,
		Left:      toJSON(n.Left),
		Right:     toJSON(n.Right),
	}
}

// FeatureObservation records one split visited during an evaluation.
type FeatureObservation struct {
	// Feature is the split's feature name.
	Feature string `json:"feature"`

	// Value is the record's value for the feature.
	Value float64 `json:"value"`

	// Threshold is the split threshold.
	Threshold float64 `json:"threshold"`

	// Direction is left if Value <= Threshold, else right.
	Direction Direction `json:"direction"`
}
