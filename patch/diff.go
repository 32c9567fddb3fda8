// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package patch

// Diff produces a command list and literal stream that turn base into
// target. It compares the buffers position by position, so it is only
// compact when target is an in-place edit of base; it is meant for building
// fixtures rather than shipping patches.
func Diff(base, target []byte) ([]Command, []byte) {
	var cmds []Command
	var lit []byte
	n := min(len(base), len(target))
	for i := 0; i < n; {
		j := i
		for j < n && base[j] == target[j] {
			j++
		}
		if j > i {
			run := uint32(j - i)
			if last := len(cmds) - 1; last >= 0 && cmds[last].Count == 0 &&
				(cmds[last].Kind == LiteralByteReplace || cmds[last].Kind == LiteralTwoByte) {
				cmds[last].Count = run
			} else {
				cmds = append(cmds, Command{Kind: CopySource, Count: run})
			}
			i = j
			continue
		}
		for j < n && base[j] != target[j] {
			j++
		}
		d := uint32(j - i)
		switch d {
		case 1:
			cmds = append(cmds, Command{Kind: LiteralByteReplace})
		case 2:
			cmds = append(cmds, Command{Kind: LiteralTwoByte})
		default:
			cmds = append(cmds,
				Command{Kind: SkipSource, Count: d},
				Command{Kind: CopyLiteralChunked, Count: d})
		}
		lit = append(lit, target[i:j]...)
		i = j
	}
	if len(target) > n {
		cmds = append(cmds, Command{Kind: CopyLiteral, Count: uint32(len(target) - n)})
		lit = append(lit, target[n:]...)
	}
	return cmds, lit
}
