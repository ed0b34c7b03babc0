// Package jscheck validates variation payloads as JavaScript before they are
// stored. Payloads execute in visitors' browsers, so a syntax error caught at
// save time is one that never ships.
package jscheck

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/rotisserie/eris"
)

// MaxCodeBytes bounds a single variation payload. Larger payloads belong in
// hosted assets, not inline experiment code.
const MaxCodeBytes = 64 * 1024

// Check compiles code as a JavaScript program and returns a descriptive error
// when it does not parse. Empty code is valid: a variation with no payload is
// a plain control arm. The code is never executed.
func Check(code string) error {
	if code == "" {
		return nil
	}
	if len(code) > MaxCodeBytes {
		return eris.Errorf("jscheck: payload exceeds %d bytes", MaxCodeBytes)
	}
	if _, err := goja.Compile("variation.js", code, false); err != nil {
		return eris.Wrap(err, "jscheck: invalid javascript")
	}
	return nil
}

// CheckAll validates a set of named payloads and reports the first failure
// with the offending name.
func CheckAll(named map[string]string) error {
	for name, code := range named {
		if err := Check(code); err != nil {
			return fmt.Errorf("variation %q: %w", name, err)
		}
	}
	return nil
}
