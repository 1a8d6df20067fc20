// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the element types attached to tensor names in an
// operator graph.
//
// Gradient tensors inherit the element type of the tensor they differentiate,
// and buffer sharing only reuses a buffer between tensors of the same type.
package tensor
