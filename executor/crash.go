// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package executor

import (
	"bytes"
	"io"
	"strings"

	"github.com/maruel/panicparse/stack"
)

const enginePkg = "github.com/bradleyjkemp/fuzzloop/executor."

// Suppression extracts a crash signature from crash output: the source line
// of the innermost target frame followed by the names of the target frames
// of the crashing goroutine. Two crashes with the same signature are
// considered the same bug. Output that cannot be parsed is its own signature.
func Suppression(out []byte) []byte {
	ctx, err := stack.ParseDump(bytes.NewReader(out), io.Discard, false)
	if err != nil || ctx == nil {
		return out
	}
	for _, gr := range ctx.Goroutines {
		if !gr.First {
			continue
		}
		var supp []byte
		for _, call := range gr.Stack.Calls {
			raw := call.Func.Raw
			if isRuntimeFrame(raw) {
				continue
			}
			if strings.HasPrefix(raw, enginePkg) {
				if supp == nil {
					// Recovery frames above the panic.
					continue
				}
				// No longer in the target.
				break
			}
			if supp == nil {
				supp = append(supp, call.FullSrcLine()...)
			}
			supp = append(supp, '\n')
			supp = append(supp, call.Func.PkgDotName()...)
		}
		if supp == nil {
			return out
		}
		return supp
	}
	return out
}

func isRuntimeFrame(fn string) bool {
	return fn == "panic" || strings.HasPrefix(fn, "runtime.") || strings.HasPrefix(fn, "runtime/debug.")
}
