// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RigSchemaVersion is the version of the rig file schema.
// Increment when the serialization format changes in a breaking way.
const RigSchemaVersion = "1.0"

const (
	// MaxRigFileSize bounds the size of a rig file accepted by ReadRig.
	MaxRigFileSize = 32 << 20

	// MaxRigDepth bounds nesting so hostile input cannot exhaust the stack.
	MaxRigDepth = 512
)

// Format selects the rig file encoding.
type Format string

const (
	// FormatYAML encodes rigs as YAML.
	FormatYAML Format = "yaml"

	// FormatJSON encodes rigs as JSON.
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension. Unknown
// extensions default to YAML, which also accepts JSON input.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Rig is a named hierarchy.
type Rig struct {
	// Name is a human-readable label, e.g. the avatar name.
	Name string

	// Root is the designated root of the hierarchy.
	Root *Node
}

// SerializableRig is the on-disk representation of a Rig.
//
// Description:
//
//	Nodes are nested in authoring order so round-tripping preserves child
//	order, which Resolve relies on for duplicated sibling names.
type SerializableRig struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version" yaml:"schema_version"`

	// Name is the rig label.
	Name string `json:"name" yaml:"name"`

	// Root is the root node.
	Root SerializableNode `json:"root" yaml:"root"`
}

// SerializableNode is the on-disk representation of a Node.
type SerializableNode struct {
	Name       string             `json:"name" yaml:"name"`
	Transform  *Transform         `json:"transform,omitempty" yaml:"transform,omitempty"`
	Components []Component        `json:"components,omitempty" yaml:"components,omitempty"`
	Children   []SerializableNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// ToSerializable converts a rig to its serializable representation.
func ToSerializable(rig *Rig) *SerializableRig {
	sr := &SerializableRig{SchemaVersion: RigSchemaVersion}
	if rig == nil || rig.Root == nil {
		return sr
	}
	sr.Name = rig.Name
	sr.Root = toSerializableNode(rig.Root)
	return sr
}

func toSerializableNode(n *Node) SerializableNode {
	t := n.Transform
	sn := SerializableNode{
		Name:      n.Name,
		Transform: &t,
	}
	for _, c := range n.Components {
		sn.Components = append(sn.Components, c.Clone())
	}
	for _, c := range n.Children {
		sn.Children = append(sn.Children, toSerializableNode(c))
	}
	return sn
}

// FromSerializable reconstructs a rig.
//
// Outputs:
//
//	*Rig - The reconstructed rig.
//	error - Non-nil if sr is nil, the schema version is unsupported, a
//	        node has no name, or nesting exceeds MaxRigDepth.
func FromSerializable(sr *SerializableRig) (*Rig, error) {
	if sr == nil {
		return nil, fmt.Errorf("serializable rig must not be nil")
	}
	if sr.SchemaVersion != "" && sr.SchemaVersion != RigSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", sr.SchemaVersion, RigSchemaVersion)
	}
	if sr.Root.Name == "" {
		return nil, fmt.Errorf("%w: root", ErrEmptyName)
	}
	root, err := fromSerializableNode(sr.Root, 0)
	if err != nil {
		return nil, err
	}
	return &Rig{Name: sr.Name, Root: root}, nil
}

func fromSerializableNode(sn SerializableNode, depth int) (*Node, error) {
	if depth > MaxRigDepth {
		return nil, fmt.Errorf("rig nesting exceeds maximum depth %d", MaxRigDepth)
	}
	n := NewNode(sn.Name)
	if sn.Transform != nil {
		n.Transform = *sn.Transform
	}
	for _, c := range sn.Components {
		n.Components = append(n.Components, c.Clone())
	}
	for i, sc := range sn.Children {
		if sc.Name == "" {
			return nil, fmt.Errorf("%w: child %d of %q", ErrEmptyName, i, sn.Name)
		}
		child, err := fromSerializableNode(sc, depth+1)
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

// ReadRig decodes a rig from r.
func ReadRig(r io.Reader, format Format) (*Rig, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxRigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading rig: %w", err)
	}
	if len(data) > MaxRigFileSize {
		return nil, fmt.Errorf("rig data exceeds maximum size (%d bytes)", MaxRigFileSize)
	}

	var sr SerializableRig
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sr); err != nil {
			return nil, fmt.Errorf("parsing rig JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &sr); err != nil {
			return nil, fmt.Errorf("parsing rig YAML: %w", err)
		}
	}
	return FromSerializable(&sr)
}

// WriteRig encodes rig to w.
func WriteRig(w io.Writer, rig *Rig, format Format) error {
	sr := ToSerializable(rig)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sr)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sr); err != nil {
			return err
		}
		return enc.Close()
	}
}

// LoadRigFile reads a rig file, picking the format from its extension.
func LoadRigFile(path string) (*Rig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rig file: %w", err)
	}
	defer f.Close()

	rig, err := ReadRig(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if rig.Name == "" {
		rig.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return rig, nil
}

// SaveRigFile writes rig to path, picking the format from its extension.
func SaveRigFile(path string, rig *Rig) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating rig file: %w", err)
	}
	if err := WriteRig(f, rig, FormatFromPath(path)); err != nil {
		f.Close()
		return fmt.Errorf("writing rig file: %w", err)
	}
	return f.Close()
}
