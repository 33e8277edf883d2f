package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"net/url"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"NewsIngest/internal/crawlerr"
)

var (
	pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	icoSignature = []byte{0, 0, 1, 0}
)

// maxPixels bounds the decoded canvas; headers declaring more are rejected before decoding.
const maxPixels = 40_000_000

// ErrNotICO is returned when a payload lacks the ICO container header.
var ErrNotICO = errors.New("not an ico container")

// Frame is one image extracted from an ICO container.
type Frame struct {
	Width  int
	Height int
	// Ext is png for embedded PNG frames and ico for BMP frames rewrapped as single-image containers.
	Ext  string
	Data []byte
}

// IsICO reports whether data starts with an icon directory header.
func IsICO(data []byte) bool {
	return len(data) >= 6 && bytes.Equal(data[:4], icoSignature)
}

// SplitICO extracts every embedded image without decoding pixels.
func SplitICO(data []byte) ([]Frame, error) {
	if !IsICO(data) {
		return nil, crawlerr.Parse("split ico", ErrNotICO)
	}
	count := int(binary.LittleEndian.Uint16(data[4:6]))
	if len(data) < 6+count*16 {
		return nil, crawlerr.Parse("split ico", fmt.Errorf("directory truncated: %d entries", count))
	}

	frames := make([]Frame, 0, count)
	for i := 0; i < count; i++ {
		entry := data[6+i*16 : 6+(i+1)*16]
		size := int(binary.LittleEndian.Uint32(entry[8:12]))
		offset := int(binary.LittleEndian.Uint32(entry[12:16]))
		if size <= 0 || offset < 0 || offset+size > len(data) {
			continue
		}
		payload := data[offset : offset+size]

		width, height := int(entry[0]), int(entry[1])
		if width == 0 {
			width = 256
		}
		if height == 0 {
			height = 256
		}

		if bytes.HasPrefix(payload, pngSignature) {
			if w, h, ok := pngDimensions(payload); ok {
				width, height = w, h
			}
			frames = append(frames, Frame{Width: width, Height: height, Ext: "png", Data: append([]byte(nil), payload...)})
			continue
		}

		frames = append(frames, Frame{Width: width, Height: height, Ext: "ico", Data: singleICO(entry, payload)})
	}

	if len(frames) == 0 {
		return nil, crawlerr.Parse("split ico", errors.New("no readable frames"))
	}
	return frames, nil
}

func singleICO(entry, payload []byte) []byte {
	out := make([]byte, 0, 22+len(payload))
	out = append(out, 0, 0, 1, 0, 1, 0)
	header := append([]byte(nil), entry...)
	binary.LittleEndian.PutUint32(header[12:16], 22)
	out = append(out, header...)
	return append(out, payload...)
}

func pngDimensions(data []byte) (int, int, bool) {
	// signature(8) + chunk length(4) + "IHDR"(4) + width(4) + height(4)
	if len(data) < 24 || string(data[12:16]) != "IHDR" {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint32(data[16:20])), int(binary.BigEndian.Uint32(data[20:24])), true
}

// Sniff guesses a file extension from the payload, falling back to the provided one.
func Sniff(data []byte, fallback string) string {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return "png"
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return "jpg"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "gif"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	case IsICO(data):
		return "ico"
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return "svg"
	}
	fallback = strings.TrimPrefix(strings.ToLower(fallback), ".")
	if fallback == "jpeg" {
		return "jpg"
	}
	return fallback
}

// Passthrough reports whether files of this extension are copied as-is and never resized.
func Passthrough(ext string) bool {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "svg", "ico":
		return true
	default:
		return false
	}
}

// Size decodes the image header. For ICO containers the widest frame is reported.
func Size(data []byte) (int, int, error) {
	if IsICO(data) {
		frames, err := SplitICO(data)
		if err != nil {
			return 0, 0, err
		}
		best := frames[0]
		for _, f := range frames[1:] {
			if f.Width > best.Width {
				best = f
			}
		}
		return best.Width, best.Height, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, crawlerr.IO("decode image size", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Fit returns the dimensions of w×h scaled to fit inside maxW×maxH without upscaling.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*ratio+0.5))
	nh := max(1, int(float64(h)*ratio+0.5))
	return nw, nh
}

// Resize re-encodes data to fit inside maxW×maxH. JPEG stays JPEG, everything else becomes PNG.
// The returned extension names the encoded format.
func Resize(data []byte, maxW, maxH int) ([]byte, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", crawlerr.IO("decode image", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", crawlerr.IO("decode image",
			fmt.Errorf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels))
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", crawlerr.IO("decode image", err)
	}

	bounds := src.Bounds()
	w, h := Fit(bounds.Dx(), bounds.Dy(), maxW, maxH)
	if w == 0 {
		return nil, "", crawlerr.IO("resize image", errors.New("empty image"))
	}

	var dst image.Image = src
	if w != bounds.Dx() || h != bounds.Dy() {
		canvas := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, bounds, draw.Over, nil)
		dst = canvas
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
		format = "jpg"
	default:
		err = png.Encode(&buf, dst)
		format = "png"
	}
	if err != nil {
		return nil, "", crawlerr.IO("encode image", err)
	}
	return buf.Bytes(), format, nil
}

// DecodeDataURI returns the payload of a data: URI and an extension derived from its media type.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", crawlerr.Parse("data uri", errors.New("missing data: prefix"))
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", crawlerr.Parse("data uri", errors.New("missing payload separator"))
	}

	mediaType := meta
	isBase64 := false
	if before, found := strings.CutSuffix(meta, ";base64"); found {
		mediaType = before
		isBase64 = true
	}
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, "", crawlerr.Parse("data uri base64", err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", crawlerr.Parse("data uri escape", err)
		}
		data = []byte(unescaped)
	}

	return data, Sniff(data, extForMediaType(mediaType)), nil
}

func extForMediaType(mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	case "image/x-icon", "image/vnd.microsoft.icon":
		return "ico"
	default:
		return "bin"
	}
}
