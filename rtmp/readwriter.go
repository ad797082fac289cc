// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package rtmp

import (
	"bufio"
	"io"
	"sync/atomic"
)

// ReadWriter buffers a connection in both directions and counts the bytes
// read so acknowledgements can be sent. Reads are sticky on error.
type ReadWriter struct {
	*bufio.ReadWriter
	readError error
	bytesRead uint64
}

func NewReadWriter(rw io.ReadWriter, bufSize int) *ReadWriter {
	return &ReadWriter{
		ReadWriter: bufio.NewReadWriter(bufio.NewReaderSize(rw, bufSize), bufio.NewWriterSize(rw, bufSize)),
	}
}

func (rw *ReadWriter) Read(p []byte) (int, error) {
	if rw.readError != nil {
		return 0, rw.readError
	}
	n, err := rw.ReadWriter.Read(p)
	atomic.AddUint64(&rw.bytesRead, uint64(n))
	rw.readError = err
	return n, err
}

func (rw *ReadWriter) ReadByte() (byte, error) {
	if rw.readError != nil {
		return 0, rw.readError
	}
	b, err := rw.ReadWriter.ReadByte()
	if err != nil {
		rw.readError = err
		return 0, err
	}
	atomic.AddUint64(&rw.bytesRead, 1)
	return b, nil
}

func (rw *ReadWriter) ReadError() error {
	return rw.readError
}

// BytesRead is the number of bytes handed out by Read and ReadByte.
func (rw *ReadWriter) BytesRead() uint64 {
	return atomic.LoadUint64(&rw.bytesRead)
}
