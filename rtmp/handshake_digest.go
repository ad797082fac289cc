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
	"crypto/hmac"
	"crypto/sha256"
)

var (
	// hsClientFullKey is the Flash Player key. Its first 30 bytes validate C1.
	hsClientFullKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'P', 'l', 'a', 'y', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}

	// hsServerFullKey is the 68 byte Flash Media Server key.
	hsServerFullKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'M', 'e', 'd', 'i', 'a', ' ',
		'S', 'e', 'r', 'v', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}

	hsClientPartialKey = hsClientFullKey[:30]
)

// digestSchema is the layout of a complex C1. Schema0 puts the key block
// first and the digest block second, Schema1 the other way around.
type digestSchema int

const (
	schemaSimple digestSchema = iota
	schema0
	schema1
)

func (s digestSchema) String() string {
	switch s {
	case schema0:
		return "schema0"
	case schema1:
		return "schema1"
	default:
		return "simple"
	}
}

const (
	hsBlockSize      = 764
	hsDigestSize     = 32
	hsKeySize        = 128
	hsMaxDigestShift = hsBlockSize - hsDigestSize - 4 // 728
	hsMaxKeyShift    = hsBlockSize - hsKeySize - 4    // 632
)

func sum4(p []byte, at int) int {
	return int(p[at]) + int(p[at+1]) + int(p[at+2]) + int(p[at+3])
}

// hsDigestOffsetField is where the 4 byte digest offset lives.
func hsDigestOffsetField(schema digestSchema) int {
	if schema == schema0 {
		return 8 + hsBlockSize
	}
	return 8
}

// hsKeyOffsetField is where the 4 byte key offset lives.
func hsKeyOffsetField(schema digestSchema) int {
	if schema == schema0 {
		return 8 + hsBlockSize - 4
	}
	return HandshakePacketSize - 4
}

func hsDigestIndex(p []byte, schema digestSchema) int {
	base := hsDigestOffsetField(schema)
	return sum4(p, base)%hsMaxDigestShift + base + 4
}

func hsKeyIndex(p []byte, schema digestSchema) int {
	offset := sum4(p, hsKeyOffsetField(schema)) % hsMaxKeyShift
	if schema == schema0 {
		return offset + 8
	}
	return offset + 8 + hsBlockSize
}

// hsMakeDigest is HMAC-SHA256 over src, skipping the 32 bytes at gap when gap > 0.
func hsMakeDigest(key []byte, src []byte, gap int) []byte {
	h := hmac.New(sha256.New, key)
	if gap <= 0 {
		h.Write(src)
	} else {
		h.Write(src[:gap])
		h.Write(src[gap+hsDigestSize:])
	}
	return h.Sum(nil)
}

// hsValidateC1 checks the C1 digest for one schema and returns it on success.
func hsValidateC1(c1 []byte, schema digestSchema) ([]byte, bool) {
	gap := hsDigestIndex(c1, schema)
	expected := hsMakeDigest(hsClientPartialKey, c1, gap)
	provided := c1[gap : gap+hsDigestSize]
	if !bytes.Equal(provided, expected) {
		return nil, false
	}
	digest := make([]byte, hsDigestSize)
	copy(digest, provided)
	return digest, true
}

// hsDetectSchema tries schema0 and then schema1.
func hsDetectSchema(c1 []byte) (digestSchema, []byte) {
	for _, schema := range []digestSchema{schema0, schema1} {
		if digest, ok := hsValidateC1(c1, schema); ok {
			return schema, digest
		}
	}
	return schemaSimple, nil
}
