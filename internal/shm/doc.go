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

// Package shm provides the shared-memory primitives used by an instrumented
// target process and an out-of-process agent to exchange typed messages:
// power-of-two ring buffers with a lock-free frame protocol, a bump arena
// allocator, an open-addressed configuration dictionary, and the region
// bootstrap that wires all of the above into a handful of named (or
// anonymous) memory-mapped segments.
//
// Nothing in this package understands message schemas. Callers hand it a
// dispatch table of (expected type hash, handler) pairs and opaque
// already-serialized payloads; code generation, RPC framing, and transport
// selection live above this package.
package shm
