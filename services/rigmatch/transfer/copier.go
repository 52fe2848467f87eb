// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transfer

import (
	"context"
	"errors"

	"github.com/AleutianAI/rigmatch/services/rigmatch/hierarchy"
)

// ErrEmptyComponentKind is returned when copying a component without a kind.
var ErrEmptyComponentKind = errors.New("component kind must not be empty")

// Copier writes a source component onto a resolved target node.
type Copier interface {
	Copy(ctx context.Context, source, target *hierarchy.Node, c hierarchy.Component) error
}

// CopierFunc adapts a function to Copier.
type CopierFunc func(ctx context.Context, source, target *hierarchy.Node, c hierarchy.Component) error

// Copy implements Copier.
func (f CopierFunc) Copy(ctx context.Context, source, target *hierarchy.Node, c hierarchy.Component) error {
	return f(ctx, source, target, c)
}

// ComponentCopier deep-copies components onto target nodes.
//
// A component of the same kind already on the target is replaced; otherwise
// the copy is appended.
type ComponentCopier struct{}

// Copy implements Copier.
func (ComponentCopier) Copy(_ context.Context, _, target *hierarchy.Node, c hierarchy.Component) error {
	if c.Kind == "" {
		return ErrEmptyComponentKind
	}
	clone := c.Clone()
	for i := range target.Components {
		if target.Components[i].Kind == c.Kind {
			target.Components[i] = clone
			return nil
		}
	}
	target.Components = append(target.Components, clone)
	return nil
}
