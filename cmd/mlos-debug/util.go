/*
 *
 * Copyright 2026 the mlos-shm authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"fmt"
	"time"
)

// errSendStalled is returned by sendWithTimeout when a write does not
// complete within the given duration. SharedChannel.Send has no timeout
// of its own, so every debug command that writes without draining wraps
// its sends through this helper instead of calling sendFunc directly.
var errSendStalled = fmt.Errorf("write did not complete before timeout")

func sendWithTimeout(fn sendFunc, codegenTypeIdx uint32, codegenTypeHash uint64, payload []byte, timeout time.Duration) error {
	result := make(chan error, 1)
	go func() { result <- fn(codegenTypeIdx, codegenTypeHash, payload) }()

	select {
	case err := <-result:
		return err
	case <-time.After(timeout):
		return errSendStalled
	}
}
