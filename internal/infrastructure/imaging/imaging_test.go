package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// icoBytes packs payloads into an ICO container; widths of 256 are written as 0.
func icoBytes(widths []int, payloads [][]byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(payloads)))
	offset := 6 + 16*len(payloads)
	for i, p := range payloads {
		w := byte(widths[i] % 256)
		buf.Write([]byte{w, w, 0, 0, 1, 0, 32, 0})
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(p)))
		_ = binary.Write(&buf, binary.LittleEndian, uint32(offset))
		offset += len(p)
	}
	for _, p := range payloads {
		buf.Write(p)
	}
	return buf.Bytes()
}

func TestSplitICO(t *testing.T) {
	t.Parallel()

	bmp := bytes.Repeat([]byte{0x28, 0, 0, 0}, 10)
	data := icoBytes([]int{16, 32, 256}, [][]byte{bmp, pngBytes(t, 32, 32), pngBytes(t, 256, 256)})

	frames, err := SplitICO(data)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, 16, frames[0].Width)
	assert.Equal(t, "ico", frames[0].Ext)
	assert.True(t, IsICO(frames[0].Data), "bmp frame is rewrapped as a standalone ico")
	assert.Len(t, frames[0].Data, 22+len(bmp))

	assert.Equal(t, 32, frames[1].Width)
	assert.Equal(t, "png", frames[1].Ext)
	assert.Equal(t, 256, frames[2].Width)

	w, h, err := Size(frames[1].Data)
	require.NoError(t, err)
	assert.Equal(t, [2]int{32, 32}, [2]int{w, h})

	w, _, err = Size(data)
	require.NoError(t, err)
	assert.Equal(t, 256, w)
}

func TestSplitICORejectsOtherPayloads(t *testing.T) {
	t.Parallel()
	_, err := SplitICO(pngBytes(t, 16, 16))
	assert.ErrorIs(t, err, ErrNotICO)
}

func TestFit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{100, 50, 200, 200, 100, 50},
		{400, 200, 200, 200, 200, 100},
		{200, 400, 100, 100, 50, 100},
		{64, 64, 16, 16, 16, 16},
		{0, 10, 16, 16, 0, 0},
	}
	for _, tc := range cases {
		w, h := Fit(tc.w, tc.h, tc.maxW, tc.maxH)
		assert.Equal(t, [2]int{tc.wantW, tc.wantH}, [2]int{w, h}, "%dx%d in %dx%d", tc.w, tc.h, tc.maxW, tc.maxH)
	}
}

func TestResize(t *testing.T) {
	t.Parallel()

	out, ext, err := Resize(pngBytes(t, 64, 32), 16, 16)
	require.NoError(t, err)
	assert.Equal(t, "png", ext)
	w, h, err := Size(out)
	require.NoError(t, err)
	assert.Equal(t, [2]int{16, 8}, [2]int{w, h})

	var jbuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jbuf, image.NewRGBA(image.Rect(0, 0, 20, 10)), nil))
	out, ext, err = Resize(jbuf.Bytes(), 100, 100)
	require.NoError(t, err)
	assert.Equal(t, "jpg", ext)
	w, _, err = Size(out)
	require.NoError(t, err)
	assert.Equal(t, 20, w, "never upscaled")

	_, _, err = Resize([]byte("<svg/>"), 10, 10)
	assert.Error(t, err)
}

func TestResizeRejectsHugeDimensionsBeforeDecoding(t *testing.T) {
	t.Parallel()

	// Rewrite the IHDR to declare 50000x50000 and fix its CRC; the pixel data stays tiny.
	data := pngBytes(t, 4, 4)
	binary.BigEndian.PutUint32(data[16:20], 50000)
	binary.BigEndian.PutUint32(data[20:24], 50000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	w, h, err := Size(data)
	require.NoError(t, err)
	require.Equal(t, [2]int{50000, 50000}, [2]int{w, h})

	_, _, err = Resize(data, 16, 16)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorIO, crawlerr.TypeOf(err))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestSniffAndPassthrough(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "png", Sniff(pngBytes(t, 1, 1), "jpg"))
	assert.Equal(t, "svg", Sniff([]byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"/>`), ""))
	assert.Equal(t, "ico", Sniff(icoBytes([]int{16}, [][]byte{{1, 2, 3}}), "png"))
	assert.Equal(t, "jpg", Sniff([]byte("garbage"), ".JPEG"))

	assert.True(t, Passthrough("svg"))
	assert.True(t, Passthrough(".ICO"))
	assert.False(t, Passthrough("png"))
}

func TestDecodeDataURI(t *testing.T) {
	t.Parallel()

	raw := pngBytes(t, 2, 2)
	data, ext, err := DecodeDataURI("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, "png", ext)

	data, ext, err = DecodeDataURI("data:image/svg+xml;charset=utf-8,%3Csvg%2F%3E")
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
	assert.Equal(t, "svg", ext)

	_, _, err = DecodeDataURI("https://example.com/a.png")
	assert.Error(t, err)
}
