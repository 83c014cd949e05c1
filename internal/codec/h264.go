// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ManuGH/hwenc/internal/caps"
)

// H.264 NAL unit types used by the hooks.
const (
	NALTypeIDR = 5
	NALTypeSPS = 7
	NALTypePPS = 8
)

var startCode = []byte{0, 0, 0, 1}

// H264 returns the H.264 descriptor. The device emits Annex B; the stream
// carries AVC (length prefixed) samples with an avcC record as codec data.
func H264() *Type {
	return &Type{
		Name:               "h264",
		Mime:               "video/avc",
		Caps:               caps.MustParse("video/x-h264, stream-format=(string)avc, alignment=(string)au"),
		ConstructCodecData: BuildAVCDecoderConfig,
		ProcessData:        AnnexBToAVC,
		Complement: func(c *caps.Caps) {
			if st := c.Structure(0); st != nil {
				st.Set("stream-format", caps.String("avc"))
				st.Set("alignment", caps.String("au"))
			}
		},
	}
}

// SplitAnnexB returns the NAL units of an Annex B byte stream without start codes.
func SplitAnnexB(b []byte) [][]byte {
	var (
		nals  [][]byte
		start = -1
	)
	for i := 0; i+3 <= len(b); {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			if start >= 0 {
				nals = appendNAL(nals, b[start:i])
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 {
		nals = appendNAL(nals, b[start:])
	}
	return nals
}

// appendNAL drops the trailing zero that belongs to a following 4-byte start code.
func appendNAL(nals [][]byte, nal []byte) [][]byte {
	nal = bytes.TrimRight(nal, "\x00")
	if len(nal) == 0 {
		return nals
	}
	return append(nals, nal)
}

// AnnexBToAVC converts an Annex B access unit to 4-byte length prefixed NAL units.
func AnnexBToAVC(b []byte) ([]byte, error) {
	nals := SplitAnnexB(b)
	if len(nals) == 0 {
		return nil, fmt.Errorf("%w: no start code in %d bytes", ErrMalformed, len(b))
	}
	size := 0
	for _, n := range nals {
		size += 4 + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nals {
		out = binary.BigEndian.AppendUint32(out, uint32(len(n)))
		out = append(out, n...)
	}
	return out, nil
}

// AVCToAnnexB converts 4-byte length prefixed NAL units back to Annex B.
func AVCToAnnexB(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b)+8)
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: truncated length prefix", ErrMalformed)
		}
		n := int(binary.BigEndian.Uint32(b))
		b = b[4:]
		if n > len(b) {
			return nil, fmt.Errorf("%w: NAL length %d exceeds %d remaining bytes", ErrMalformed, n, len(b))
		}
		out = append(out, startCode...)
		out = append(out, b[:n]...)
		b = b[n:]
	}
	return out, nil
}

// BuildAVCDecoderConfig builds an avcC record from an Annex B codec-config
// payload holding SPS and PPS NAL units.
func BuildAVCDecoderConfig(b []byte) ([]byte, error) {
	var sps, pps [][]byte
	for _, n := range SplitAnnexB(b) {
		switch n[0] & 0x1f {
		case NALTypeSPS:
			sps = append(sps, n)
		case NALTypePPS:
			pps = append(pps, n)
		}
	}
	if len(sps) == 0 || len(pps) == 0 {
		return nil, fmt.Errorf("%w: codec config needs SPS and PPS (got %d/%d)", ErrMalformed, len(sps), len(pps))
	}
	if len(sps[0]) < 4 {
		return nil, fmt.Errorf("%w: SPS too short", ErrMalformed)
	}
	if len(sps) > 31 || len(pps) > 255 {
		return nil, fmt.Errorf("%w: too many parameter sets", ErrMalformed)
	}

	out := []byte{
		1,         // configurationVersion
		sps[0][1], // AVCProfileIndication
		sps[0][2], // profile_compatibility
		sps[0][3], // AVCLevelIndication
		0xff,      // lengthSizeMinusOne = 3
		0xe0 | byte(len(sps)),
	}
	for _, s := range sps {
		out = binary.BigEndian.AppendUint16(out, uint16(len(s)))
		out = append(out, s...)
	}
	out = append(out, byte(len(pps)))
	for _, p := range pps {
		out = binary.BigEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
	}
	return out, nil
}

// ParameterSetsFromAVCC extracts SPS and PPS NAL units from an avcC record.
func ParameterSetsFromAVCC(b []byte) (sps, pps [][]byte, err error) {
	if len(b) < 7 || b[0] != 1 {
		return nil, nil, fmt.Errorf("%w: not an avcC record", ErrMalformed)
	}
	read := func(p []byte, count int) ([][]byte, []byte, error) {
		var sets [][]byte
		for i := 0; i < count; i++ {
			if len(p) < 2 {
				return nil, nil, fmt.Errorf("%w: truncated avcC", ErrMalformed)
			}
			n := int(binary.BigEndian.Uint16(p))
			p = p[2:]
			if n > len(p) {
				return nil, nil, fmt.Errorf("%w: truncated avcC", ErrMalformed)
			}
			sets = append(sets, p[:n])
			p = p[n:]
		}
		return sets, p, nil
	}
	rest := b[6:]
	if sps, rest, err = read(rest, int(b[5]&0x1f)); err != nil {
		return nil, nil, err
	}
	if len(rest) < 1 {
		return nil, nil, fmt.Errorf("%w: truncated avcC", ErrMalformed)
	}
	if pps, _, err = read(rest[1:], int(rest[0])); err != nil {
		return nil, nil, err
	}
	return sps, pps, nil
}
