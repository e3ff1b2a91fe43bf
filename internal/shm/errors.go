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

package shm

import "errors"

// Error taxonomy for the shared-memory primitives. Each kind is a sentinel
// wrapped with context at the call site and checked with errors.Is.
var (
	ErrAlreadyExists      = errors.New("shm: already exists")
	ErrNotFound           = errors.New("shm: not found")
	ErrPermissionDenied   = errors.New("shm: permission denied")
	ErrOutOfMemory        = errors.New("shm: out of memory")
	ErrIO                 = errors.New("shm: io failure")
	ErrInvalidFrame       = errors.New("shm: invalid frame")
	ErrChannelTerminated  = errors.New("shm: channel terminated")
	ErrUnsupported        = errors.New("shm: operation not supported on this platform")
)
