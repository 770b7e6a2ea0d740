// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "code.hybscloud.com/atomix"

// FiberID is a monotonically increasing fiber identifier.
// Each fork assigns the next value.
type FiberID = uint64

// fiberCounter is the global monotonic counter for fiber ids.
var fiberCounter atomix.Uint64

// nextFiberID returns the next monotonically increasing fiber id.
func nextFiberID() FiberID {
	return fiberCounter.Add(1)
}
