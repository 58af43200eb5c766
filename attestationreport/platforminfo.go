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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"unicode"
)

// Platform info blob as returned by IAS: a 4 byte TLV header followed by
// the 101 byte sgx_platform_info structure. Integers are big-endian.
const (
	PlatformInfoHeaderSize = 4
	PlatformInfoSize       = 101
	PlatformInfoBlobSize   = PlatformInfoHeaderSize + PlatformInfoSize
	PlatformInfoHexSize    = 2 * PlatformInfoBlobSize

	GroupIdSize = 4
)

// EPID group flags
const (
	QeEpidGroupRevoked               uint8 = 0x01
	PerfRekeyForQeEpidGroupAvailable uint8 = 0x02
	QeEpidGroupOutOfDate             uint8 = 0x04
)

// TCB evaluation flags
const (
	QuoteCpuSvnOutOfDate        uint16 = 0x0001
	QuoteIsvSvnQeOutOfDate      uint16 = 0x0002
	QuoteIsvSvnPceOutOfDate     uint16 = 0x0004
	PlatformConfigurationNeeded uint16 = 0x0008
)

// PSE evaluation flags
const (
	PseIsvSvnOutOfDate                    uint16 = 0x0001
	EpidGroupIdByPsHwGidRevoked           uint16 = 0x0002
	SvnFromPsHwSecInfoOutOfDate           uint16 = 0x0004
	SigRlVerFromPsHwSigRlVerOutOfDate     uint16 = 0x0008
	PrivRlVerFromPsHwPrvKeyRlVerOutOfDate uint16 = 0x0010
)

type Ec256Signature struct {
	Gx HexByte `json:"gx" cbor:"0,keyasint"`
	Gy HexByte `json:"gy" cbor:"1,keyasint"`
}

type PlatformInfoBlob struct {
	EpidGroupFlags          uint8          `json:"epidGroupFlags" cbor:"0,keyasint"`
	TcbEvaluationFlags      uint16         `json:"tcbEvaluationFlags" cbor:"1,keyasint"`
	PseEvaluationFlags      uint16         `json:"pseEvaluationFlags" cbor:"2,keyasint"`
	LatestEquivalentTcbPsvn HexByte        `json:"latestEquivalentTcbPsvn" cbor:"3,keyasint"`
	LatestPseIsvSvn         HexByte        `json:"latestPseIsvSvn" cbor:"4,keyasint"`
	LatestPsdaSvn           HexByte        `json:"latestPsdaSvn" cbor:"5,keyasint"`
	Xeid                    uint32         `json:"xeid" cbor:"6,keyasint"`
	GroupId                 GroupId        `json:"gid" cbor:"7,keyasint"`
	Signature               Ec256Signature `json:"signature" cbor:"8,keyasint"`
}

// GroupId is the 4 byte EPID group identifier in the byte order of the
// platform info blob
type GroupId [GroupIdSize]byte

func (g GroupId) Uint32() uint32 {
	return binary.BigEndian.Uint32(g[:])
}

func (g GroupId) String() string {
	return hex.EncodeToString(g[:])
}

func (g GroupId) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", g.String())), nil
}

func (g *GroupId) UnmarshalJSON(data []byte) error {
	var h HexByte
	if err := h.UnmarshalJSON(data); err != nil {
		return err
	}
	if len(h) != GroupIdSize {
		return fmt.Errorf("invalid group id length %v", len(h))
	}
	copy(g[:], h)
	return nil
}

// DecodePlatformInfoHex decodes the hex encoded platform info blob as found in
// the platformInfoBlob field of the IAS report
func DecodePlatformInfoHex(s string) (*PlatformInfoBlob, error) {
	if len(s) != PlatformInfoHexSize {
		return nil, fmt.Errorf("%w: platform info blob hex length %v (expected %v)",
			ErrMalformedInput, len(s), PlatformInfoHexSize)
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return nil, fmt.Errorf("%w: platform info blob contains non-alphanumeric character %q",
				ErrMalformedInput, r)
		}
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode platform info blob: %v", ErrMalformedInput, err)
	}
	return DecodePlatformInfoBlob(data)
}

// DecodePlatformInfoBlob strips the TLV header and decodes the platform info
func DecodePlatformInfoBlob(data []byte) (*PlatformInfoBlob, error) {
	if len(data) != PlatformInfoBlobSize {
		return nil, fmt.Errorf("%w: platform info blob length %v (expected %v)",
			ErrMalformedInput, len(data), PlatformInfoBlobSize)
	}
	b := data[PlatformInfoHeaderSize:]

	log.Tracef("Decoding platform info: %v", hex.EncodeToString(b))

	pib := &PlatformInfoBlob{
		EpidGroupFlags:          b[0],
		TcbEvaluationFlags:      binary.BigEndian.Uint16(b[1:3]),
		PseEvaluationFlags:      binary.BigEndian.Uint16(b[3:5]),
		LatestEquivalentTcbPsvn: clone(b[5:23]),
		LatestPseIsvSvn:         clone(b[23:25]),
		LatestPsdaSvn:           clone(b[25:29]),
		Xeid:                    binary.BigEndian.Uint32(b[29:33]),
		Signature: Ec256Signature{
			Gx: clone(b[37:69]),
			Gy: clone(b[69:101]),
		},
	}
	copy(pib.GroupId[:], b[33:37])

	return pib, nil
}

func (p *PlatformInfoBlob) GroupRevoked() bool {
	return p.EpidGroupFlags&QeEpidGroupRevoked != 0
}

func (p *PlatformInfoBlob) PerformanceRekeyAvailable() bool {
	return p.EpidGroupFlags&PerfRekeyForQeEpidGroupAvailable != 0
}

func (p *PlatformInfoBlob) GroupOutOfDate() bool {
	return p.EpidGroupFlags&QeEpidGroupOutOfDate != 0
}

func (p *PlatformInfoBlob) CpuSvnOutOfDate() bool {
	return p.TcbEvaluationFlags&QuoteCpuSvnOutOfDate != 0
}

func (p *PlatformInfoBlob) QeIsvSvnOutOfDate() bool {
	return p.TcbEvaluationFlags&QuoteIsvSvnQeOutOfDate != 0
}

func (p *PlatformInfoBlob) PceIsvSvnOutOfDate() bool {
	return p.TcbEvaluationFlags&QuoteIsvSvnPceOutOfDate != 0
}

func (p *PlatformInfoBlob) ConfigurationNeeded() bool {
	return p.TcbEvaluationFlags&PlatformConfigurationNeeded != 0
}

func (p *PlatformInfoBlob) PseIsvSvnOutOfDate() bool {
	return p.PseEvaluationFlags&PseIsvSvnOutOfDate != 0
}

func (p *PlatformInfoBlob) PsHwGidRevoked() bool {
	return p.PseEvaluationFlags&EpidGroupIdByPsHwGidRevoked != 0
}

func (p *PlatformInfoBlob) PsHwSecInfoOutOfDate() bool {
	return p.PseEvaluationFlags&SvnFromPsHwSecInfoOutOfDate != 0
}

func (p *PlatformInfoBlob) PsHwSigRlOutOfDate() bool {
	return p.PseEvaluationFlags&SigRlVerFromPsHwSigRlVerOutOfDate != 0
}

func (p *PlatformInfoBlob) PsHwPrivRlOutOfDate() bool {
	return p.PseEvaluationFlags&PrivRlVerFromPsHwPrvKeyRlVerOutOfDate != 0
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
