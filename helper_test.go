// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"testing"

	"code.hybscloud.com/fiber"
	"go.uber.org/zap"
)

// newTestRuntime builds a runtime that keeps unobserved-failure
// reporting quiet during tests.
func newTestRuntime() fiber.Runtime {
	return fiber.NewRuntimeWith(fiber.EmptyEnv(), fiber.NewPlatform(zap.NewNop()))
}

// run executes the effect and fails the test on a failed exit.
func run(t *testing.T, rt fiber.Runtime, e fiber.Effect) fiber.Erased {
	t.Helper()
	exit := rt.UnsafeRun(e)
	if c, failed := exit.CauseOf(); failed {
		t.Fatalf("effect failed: %s", fiber.PrettyCause(c))
	}
	v, _ := exit.Value()
	return v
}

// runExit executes the effect and returns the raw exit.
func runExit(rt fiber.Runtime, e fiber.Effect) fiber.Exit {
	return rt.UnsafeRun(e)
}
