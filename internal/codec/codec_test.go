// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/hwenc/internal/caps"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00, 0x21}
)

func annexB(nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func TestResolverFromCaps(t *testing.T) {
	r := DefaultResolver()

	tests := []struct {
		caps string
		want string
	}{
		{"video/x-h264, stream-format=(string)avc, alignment=(string)au", "h264"},
		{"video/x-h264; video/x-vp8", "h264"},
		{"video/x-vp8, width=(int)320", "vp8"},
		{"video/mpeg, mpegversion=(int)4", "mpeg4"},
		{"video/x-h263", "h263"},
	}
	for _, tt := range tests {
		typ, err := r.FromCaps(caps.MustParse(tt.caps), Encoder)
		require.NoError(t, err, tt.caps)
		assert.Equal(t, tt.want, typ.Name, tt.caps)
	}

	_, err := r.FromCaps(caps.MustParse("video/x-h264, stream-format=(string)byte-stream"), Encoder)
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = r.FromCaps(caps.MustParse("video/mpeg, mpegversion=(int)2"), Encoder)
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = r.FromCaps(caps.New(), Encoder)
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = r.FromCaps(caps.MustParse("video/x-vp8"), Decoder)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestResolverTemplate(t *testing.T) {
	tmpl := DefaultResolver().Template(Encoder)
	assert.Equal(t, 4, tmpl.Len())
	assert.Equal(t, "video/x-h264", tmpl.Structure(0).Name())
}

func TestAnnexBToAVCRoundTrip(t *testing.T) {
	in := annexB(testSPS, testPPS, testIDR)
	avc, err := AnnexBToAVC(in)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, byte(len(testSPS))}, avc[:4])
	assert.Len(t, avc, 3*4+len(testSPS)+len(testPPS)+len(testIDR))

	back, err := AVCToAnnexB(avc)
	require.NoError(t, err)
	if diff := cmp.Diff(in, back); diff != "" {
		t.Fatalf("annex b mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitAnnexBThreeByteStartCode(t *testing.T) {
	in := append([]byte{0, 0, 1}, testSPS...)
	in = append(in, 0, 0, 1)
	in = append(in, testPPS...)
	got := SplitAnnexB(in)
	if diff := cmp.Diff([][]byte{testSPS, testPPS}, got); diff != "" {
		t.Fatalf("nal split mismatch (-want +got):\n%s", diff)
	}
}

func TestAnnexBToAVCRejectsRawPayload(t *testing.T) {
	_, err := AnnexBToAVC([]byte{0x65, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = AVCToAnnexB([]byte{0, 0, 0, 9, 1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBuildAVCDecoderConfig(t *testing.T) {
	avcc, err := BuildAVCDecoderConfig(annexB(testSPS, testPPS))
	require.NoError(t, err)
	assert.Equal(t, byte(1), avcc[0])
	assert.Equal(t, testSPS[1], avcc[1])
	assert.Equal(t, testSPS[3], avcc[3])
	assert.Equal(t, byte(0xff), avcc[4])
	assert.Equal(t, byte(0xe1), avcc[5])

	sps, pps, err := ParameterSetsFromAVCC(avcc)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{testSPS}, sps)
	assert.Equal(t, [][]byte{testPPS}, pps)

	_, err = BuildAVCDecoderConfig(annexB(testSPS))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestComplementHooks(t *testing.T) {
	c := caps.MustParse("video/x-h264, width=(int)320")
	H264().Complement(c)
	format, _ := c.Structure(0).GetString("stream-format")
	assert.Equal(t, "avc", format)

	m := caps.MustParse("video/mpeg, mpegversion=(int)4")
	MPEG4().Complement(m)
	assert.True(t, m.Structure(0).Has("systemstream"))

	assert.Nil(t, VP8().Complement)
	assert.Nil(t, VP8().ProcessData)
}
