// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
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

package attestationreport

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
)

// ClaimCanonicalizationVersion identifies the byte format produced by
// ClaimRecord.Canonicalize. Changing the format requires a new version.
const ClaimCanonicalizationVersion = 1

// ClaimRecord is the user supplied claim whose hash the enclave commits to
// in the first half of the quote report data
type ClaimRecord struct {
	Address ByteList `json:"address" cbor:"0,keyasint"`
	Message string   `json:"message" cbor:"1,keyasint"`
}

// ByteList is a byte slice encoded in JSON as an array of decimal byte values
type ByteList []byte

func (b ByteList) MarshalJSON() ([]byte, error) {
	return appendByteList(make([]byte, 0, 4*len(b)+2), b), nil
}

func (b *ByteList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = nil
		return nil
	}
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to unmarshal byte list: %w", err)
	}
	list := make(ByteList, 0, len(values))
	for _, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte list value %v out of range", v)
		}
		list = append(list, byte(v))
	}
	*b = list
	return nil
}

// Canonicalize returns the canonical version 1 form of the claim:
// {"address":[d,...],"message":"m"} without whitespace, with the message
// escaped as JSON string and every backslash removed afterwards
func (c *ClaimRecord) Canonicalize() []byte {
	buf := make([]byte, 0, 32+4*len(c.Address)+len(c.Message))
	buf = append(buf, `{"address":`...)
	buf = appendByteList(buf, c.Address)
	buf = append(buf, `,"message":`...)
	buf = appendEscapedString(buf, c.Message)
	buf = append(buf, '}')

	return bytes.ReplaceAll(buf, []byte{'\\'}, nil)
}

// Hash returns the SHA-256 digest of the canonical form
func (c *ClaimRecord) Hash() [sha256.Size]byte {
	return sha256.Sum256(c.Canonicalize())
}

func appendByteList(buf []byte, b []byte) []byte {
	buf = append(buf, '[')
	for i, v := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(v), 10)
	}
	return append(buf, ']')
}

const lowerHex = "0123456789abcdef"

// appendEscapedString writes s as quoted JSON string. Only the quotation
// mark, the backslash and control characters are escaped; all other bytes,
// including non-ASCII UTF-8 and HTML characters, are copied unchanged
func appendEscapedString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if c < 0x20 {
				buf = append(buf, '\\', 'u', '0', '0', lowerHex[c>>4], lowerHex[c&0xf])
			} else {
				buf = append(buf, c)
			}
		}
	}
	return append(buf, '"')
}
