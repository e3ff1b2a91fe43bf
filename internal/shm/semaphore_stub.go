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

//go:build !linux

package shm

// CreateOrOpenSemaphore is unsupported on non-Linux hosts: futex is a
// Linux-only syscall.
func CreateOrOpenSemaphore(name string) (*NamedSemaphore, error) { return nil, ErrUnsupported }

func (s *NamedSemaphore) Signal() error       { return ErrUnsupported }
func (s *NamedSemaphore) Wait() error         { return ErrUnsupported }
func (s *NamedSemaphore) Close(cleanup bool) error { return ErrUnsupported }
