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

package fdexchange

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SocketPath is the well-known Unix-domain stream socket FdExchange
// listens on.
const SocketPath = "/var/tmp/mlos/mlos.sock"

const maxNameLen = 4096

// Dial connects to the agent's FdExchange socket. Connect failure here is
// never treated as fatal by callers: the target keeps its regions
// anonymous and retries on the next FileWatcher event.
func Dial() (*net.UnixConn, error) {
	conn, err := net.Dial("unix", SocketPath)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}

// writeFrame writes a length-prefixed name frame, with fd carried as
// SCM_RIGHTS ancillary data when fd >= 0.
func writeFrame(conn *net.UnixConn, name string, fd int) error {
	if len(name) > maxNameLen {
		return fmt.Errorf("fdexchange: name too long: %d bytes", len(name))
	}
	body := make([]byte, 4+len(name))
	binary.LittleEndian.PutUint32(body, uint32(len(name)))
	copy(body[4:], name)

	var oob []byte
	if fd >= 0 {
		oob = unix.UnixRights(fd)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sendErr error
	ctrlErr := raw.Control(func(rawFd uintptr) {
		sendErr = unix.Sendmsg(int(rawFd), body, oob, nil, 0)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sendErr
}

// readFrame reads one name frame and, if present, the fd carried as
// ancillary data. hasFd is false when the peer replied with a positive
// name length but no ancillary data, meaning "not known."
func readFrame(conn *net.UnixConn) (name string, fd int, hasFd bool, err error) {
	body := make([]byte, 4+maxNameLen)
	oob := make([]byte, unix.CmsgSpace(4))

	raw, err := conn.SyscallConn()
	if err != nil {
		return "", -1, false, err
	}

	var n, oobn int
	var recvErr error
	ctrlErr := raw.Read(func(rawFd uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(rawFd), body, oob, 0)
		return recvErr != unix.EAGAIN // not ready yet: wait for readability and retry
	})
	if ctrlErr != nil {
		return "", -1, false, ctrlErr
	}
	if recvErr != nil {
		return "", -1, false, recvErr
	}
	if n < 4 {
		return "", -1, false, fmt.Errorf("fdexchange: short frame: %d bytes", n)
	}

	nameLen := binary.LittleEndian.Uint32(body[:4])
	if int(nameLen) > n-4 {
		return "", -1, false, fmt.Errorf("fdexchange: truncated name frame")
	}
	name = string(body[4 : 4+nameLen])

	if oobn == 0 {
		return name, -1, false, nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return "", -1, false, err
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return name, fds[0], true, nil
		}
	}
	return name, -1, false, nil
}

// SendFd pushes name+fd as ancillary data to the peer, unprompted.
func SendFd(conn *net.UnixConn, name string, fd int) error {
	return writeFrame(conn, name, fd)
}

// GetFd asks the peer for name's fd. Returns (-1, false, nil) if the peer
// replied "not known."
func GetFd(conn *net.UnixConn, name string) (fd int, ok bool, err error) {
	if err := writeFrame(conn, name, -1); err != nil {
		return -1, false, err
	}
	_, fd, ok, err = readFrame(conn)
	return fd, ok, err
}

// Recv reads one incoming frame addressed to this end, whether it's an
// unprompted SendFd push or a response to an earlier GetFd. Server-side
// listeners use this to learn what name+fd (if any) the peer is handing
// over.
func Recv(conn *net.UnixConn) (name string, fd int, ok bool, err error) {
	return readFrame(conn)
}
