// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package rpak loads pak containers into an asset registry and exports
// assets together with everything they depend on.
//
// A Loader dispatches each requested file by extension: .rpak files are
// opened with package pakfile (reading patch_master.rpak first so the
// newest revision of every pak is chosen), .bpk files with package bpk,
// .mdl files as loose single-asset containers, and .mbnk files through a
// caller-registered ContainerLoader. Every asset is registered with the
// asset.Registry and handed to its type binding's load callback, then one
// post-load pass runs over the batch.
//
// An Exporter walks an asset's dependency graph and writes each asset
// through its binding's export callback, optionally fanning out over a
// worker pool.
package rpak
