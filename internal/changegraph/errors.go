// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package changegraph

import "errors"

// ErrAtRoot is returned by Undo when current is already the root.
var ErrAtRoot = errors.New("changegraph: at root, nothing to undo")

// ErrAtLeaf is returned by Redo when current has no children.
var ErrAtLeaf = errors.New("changegraph: at leaf, nothing to redo")

// ErrNoSuchChild is returned by Redo when an explicit child id does
// not name one of current's children.
var ErrNoSuchChild = errors.New("changegraph: no such child")
