// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package asset holds the in-memory model shared by every container
// format: GUID-addressed assets, the containers that own their bytes, and
// the per-type bindings that load, preview and export them.
//
// A Registry is the sole owner of assets and containers. It is not a
// process-wide singleton; construct one with NewRegistry and pass it to the
// loader and exporter.
package asset
