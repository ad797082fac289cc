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
	"bytes"
	"io"
	"testing"

	"github.com/gwuhaolin/livego/utils/pio"
)

func appendFLVTag(b []byte, tagType uint8, timestamp uint32, payload []byte) []byte {
	header := make([]byte, flvTagHeaderLength)
	header[0] = tagType
	pio.PutU24BE(header[1:4], uint32(len(payload)))
	pio.PutU24BE(header[4:7], timestamp&0xffffff)
	header[7] = uint8(timestamp >> 24)
	b = append(b, header...)
	b = append(b, payload...)
	prev := make([]byte, flvPrevTagSizeBytes)
	pio.PutU32BE(prev, uint32(len(header)+len(payload)))
	return append(b, prev...)
}

func testFLVFile() []byte {
	b := []byte{'F', 'L', 'V', 1, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}
	b = appendFLVTag(b, flvTagTypeVideo, 0, []byte{0x17, 0x00, 0, 0, 0, 1})
	b = appendFLVTag(b, flvTagTypeAudio, 23, []byte{0xaf, 0x01, 2, 3})
	b = appendFLVTag(b, 0x1f, 40, []byte{9, 9})
	b = appendFLVTag(b, flvTagTypeVideo, 0x01000005, []byte{0x27, 0x01, 0, 0, 0})
	return b
}

func TestFLVReader(t *testing.T) {
	r := NewFLVReader(bytes.NewReader(testFLVFile()))
	expected := []struct {
		mediaType MediaType
		timestamp uint32
		size      int
	}{
		{MediaTypeVideo, 0, 6},
		{MediaTypeAudio, 23, 4},
		{MediaTypeVideo, 0x01000005, 5},
	}
	for i, e := range expected {
		tag, err := r.ReadTag()
		if err != nil {
			t.Errorf("tag %d: %v", i, err)
			t.FailNow()
		}
		if tag.MediaType != e.mediaType || tag.Timestamp != e.timestamp || len(tag.Payload) != e.size {
			t.Errorf("tag %d: expected %v@%d (%d bytes), got %v@%d (%d bytes)", i, e.mediaType, e.timestamp, e.size, tag.MediaType, tag.Timestamp, len(tag.Payload))
		}
	}
	if _, err := r.ReadTag(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFLVReaderRejectsGarbage(t *testing.T) {
	sadCases := [][]byte{
		nil,
		[]byte("FLX\x01\x05\x00\x00\x00\x09\x00\x00\x00\x00"),
		[]byte("FLV\x01\x05\x00\x00\x00\x02\x00\x00\x00\x00"),
	}
	for i, input := range sadCases {
		if _, err := NewFLVReader(bytes.NewReader(input)).ReadTag(); err == nil {
			t.Errorf("case %d: expected an error", i)
		}
	}

	truncated := testFLVFile()
	truncated = truncated[:len(truncated)-8]
	r := NewFLVReader(bytes.NewReader(truncated))
	var err error
	for err == nil {
		_, err = r.ReadTag()
	}
	if err == io.EOF {
		t.Errorf("a truncated tag must not look like a clean end of file")
	}
}
