// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pakfile reads and writes rpak containers.
//
// A pak is a header, a set of descriptor tables and a sequence of pages.
// Pages are loaded in order starting at the first page stored in the file,
// wrapping around to page 0. Pointers inside page data are stored as
// (page, offset) pairs; they are resolved into Refs incrementally as the
// pages they live in and point at arrive. A patched pak stores only the
// pages that changed wholesale; the rest are rebuilt by replaying a delta
// stream over the previous revision.
package pakfile
