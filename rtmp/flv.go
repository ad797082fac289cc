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

	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/pkg/errors"
)

const (
	flvHeaderLength     = 9
	flvTagHeaderLength  = 11
	flvPrevTagSizeBytes = 4

	flvTagTypeAudio  = 8
	flvTagTypeVideo  = 9
	flvTagTypeScript = 18
)

var ErrNotFLV = errors.New("rtmp: not an flv file")

// FLVTag is one audio, video or script tag read from an FLV file.
type FLVTag struct {
	MediaType MediaType
	Timestamp uint32
	Payload   []byte
}

// FLVReader reads tags from an FLV file so they can be published over RTMP.
type FLVReader struct {
	r       *bufio.Reader
	header  [flvTagHeaderLength]byte
	started bool
}

func NewFLVReader(r io.Reader) *FLVReader {
	return &FLVReader{r: bufio.NewReaderSize(r, pio.RecommendBufioSize)}
}

func (f *FLVReader) readFileHeader() error {
	var h [flvHeaderLength]byte
	if _, err := io.ReadFull(f.r, h[:]); err != nil {
		return errors.Wrap(ErrNotFLV, err.Error())
	}
	if h[0] != 'F' || h[1] != 'L' || h[2] != 'V' {
		return ErrNotFLV
	}
	offset := pio.U32BE(h[5:9])
	if offset < flvHeaderLength {
		return ErrNotFLV
	}
	// Skip any extended header and PreviousTagSize0.
	if _, err := f.r.Discard(int(offset) - flvHeaderLength + flvPrevTagSizeBytes); err != nil {
		return errors.Wrap(ErrNotFLV, err.Error())
	}
	return nil
}

// ReadTag returns the next media tag. Tag types other than audio, video and
// script data are skipped. io.EOF is returned at a clean end of file.
func (f *FLVReader) ReadTag() (*FLVTag, error) {
	if !f.started {
		if err := f.readFileHeader(); err != nil {
			return nil, err
		}
		f.started = true
	}
	for {
		if _, err := io.ReadFull(f.r, f.header[:]); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "rtmp: flv tag header")
		}
		tagType := f.header[0] & 0x1f
		size := pio.U24BE(f.header[1:4])
		timestamp := pio.U24BE(f.header[4:7]) | uint32(f.header[7])<<24

		payload := make([]byte, size)
		if _, err := io.ReadFull(f.r, payload); err != nil {
			return nil, errors.Wrap(err, "rtmp: flv tag body")
		}
		if _, err := f.r.Discard(flvPrevTagSizeBytes); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "rtmp: flv previous tag size")
		}

		tag := &FLVTag{Timestamp: timestamp, Payload: payload}
		switch tagType {
		case flvTagTypeAudio:
			tag.MediaType = MediaTypeAudio
		case flvTagTypeVideo:
			tag.MediaType = MediaTypeVideo
		case flvTagTypeScript:
			tag.MediaType = MediaTypeData
		default:
			continue
		}
		return tag, nil
	}
}

// WriteFLVTag sends tag on the client's stream. Script tags are prefixed
// with @setDataFrame so the server caches them as stream metadata.
func (c *Client) WriteFLVTag(tag *FLVTag) error {
	payload := tag.Payload
	if tag.MediaType == MediaTypeData {
		reformed, err := amf.MetaDataReform(payload, amf.ADD)
		if err != nil {
			return errors.Wrap(err, "rtmp: flv script tag")
		}
		payload = reformed
	}
	return c.WriteMedia(tag.MediaType, tag.Timestamp, payload)
}
