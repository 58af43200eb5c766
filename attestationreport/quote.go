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
	"fmt"
)

// Layout of the isvEnclaveQuoteBody: the sgx_quote_t header followed by the
// sgx_report_body_t, without signature. Integers are little-endian.
const (
	QuoteBodySize       = 432
	QuoteHeaderSize     = 48
	ReportBodySize      = 384
	ClaimHashSize       = 32
	quoteCpuSvnOffset   = 48
	quoteMiscSelOffset  = 64
	quoteAttrOffset     = 96
	quoteMrEnclave      = 112
	quoteMrSigner       = 176
	quoteIsvProdId      = 304
	quoteIsvSvn         = 306
	quoteReportData     = 368
	quoteReportDataSize = 64
)

// EPID signature types
const (
	EpidUnlinkable uint16 = 0
	EpidLinkable   uint16 = 1
)

type QuoteBody struct {
	Version     uint16  `json:"version" cbor:"0,keyasint"`
	SignType    uint16  `json:"signType" cbor:"1,keyasint"`
	EpidGroupId HexByte `json:"epidGroupId" cbor:"2,keyasint"`
	QeSvn       uint16  `json:"qeSvn" cbor:"3,keyasint"`
	PceSvn      uint16  `json:"pceSvn" cbor:"4,keyasint"`
	Xeid        uint32  `json:"xeid" cbor:"5,keyasint"`
	Basename    HexByte `json:"basename" cbor:"6,keyasint"`
	CpuSvn      HexByte `json:"cpuSvn" cbor:"7,keyasint"`
	MiscSelect  uint32  `json:"miscSelect" cbor:"8,keyasint"`
	Attributes  HexByte `json:"attributes" cbor:"9,keyasint"`
	MrEnclave   HexByte `json:"mrEnclave" cbor:"10,keyasint"`
	MrSigner    HexByte `json:"mrSigner" cbor:"11,keyasint"`
	IsvProdId   uint16  `json:"isvProdId" cbor:"12,keyasint"`
	IsvSvn      uint16  `json:"isvSvn" cbor:"13,keyasint"`
	ReportData  HexByte `json:"reportData" cbor:"14,keyasint"`
}

// DecodeQuoteBody decodes a raw 432 byte quote body field by field
func DecodeQuoteBody(data []byte) (*QuoteBody, error) {
	if len(data) != QuoteBodySize {
		return nil, fmt.Errorf("%w: quote body length %v (expected %v)",
			ErrMalformedInput, len(data), QuoteBodySize)
	}

	q := &QuoteBody{
		Version:     binary.LittleEndian.Uint16(data[0:2]),
		SignType:    binary.LittleEndian.Uint16(data[2:4]),
		EpidGroupId: clone(data[4:8]),
		QeSvn:       binary.LittleEndian.Uint16(data[8:10]),
		PceSvn:      binary.LittleEndian.Uint16(data[10:12]),
		Xeid:        binary.LittleEndian.Uint32(data[12:16]),
		Basename:    clone(data[16:QuoteHeaderSize]),
		CpuSvn:      clone(data[quoteCpuSvnOffset:quoteMiscSelOffset]),
		MiscSelect:  binary.LittleEndian.Uint32(data[quoteMiscSelOffset : quoteMiscSelOffset+4]),
		Attributes:  clone(data[quoteAttrOffset:quoteMrEnclave]),
		MrEnclave:   clone(data[quoteMrEnclave : quoteMrEnclave+32]),
		MrSigner:    clone(data[quoteMrSigner : quoteMrSigner+32]),
		IsvProdId:   binary.LittleEndian.Uint16(data[quoteIsvProdId : quoteIsvProdId+2]),
		IsvSvn:      binary.LittleEndian.Uint16(data[quoteIsvSvn : quoteIsvSvn+2]),
		ReportData:  clone(data[quoteReportData : quoteReportData+quoteReportDataSize]),
	}

	log.Tracef("Decoded quote body version %v, sign type %v", q.Version, q.SignType)

	return q, nil
}

// ClaimPayloadHash returns the first 32 bytes of the report data, which carry
// the hash of the canonicalized claim
func (q *QuoteBody) ClaimPayloadHash() []byte {
	return q.ReportData[:ClaimHashSize]
}

// EpidGroupIdValue returns the little-endian EPID group id of the quote header
func (q *QuoteBody) EpidGroupIdValue() uint32 {
	return binary.LittleEndian.Uint32(q.EpidGroupId)
}
