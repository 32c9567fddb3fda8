// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bindings provides the type bindings that need no knowledge of
// asset internals: patch lists, bpk files, loose models and a raw dumper
// usable for any pak asset type.
package bindings
