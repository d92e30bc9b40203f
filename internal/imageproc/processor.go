// Package imageproc derives the stored photo variants from a raw capture:
// a bounded full-resolution JPEG and a thumbnail.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Processed is the output of preprocessing one raw image.
type Processed struct {
	FullJPEG      []byte
	ThumbnailJPEG []byte
	FullWidth     int
	FullHeight    int
	ThumbWidth    int
	ThumbHeight   int
}

// Processor turns a decoded image into its stored variants. The default
// limits match the capture pipeline: full images bounded to a 1600px long
// edge at quality 75, thumbnails to 320px at quality 65.
type Processor struct {
	MaxFullLongEdge  int
	MaxThumbLongEdge int
	FullQuality      int
	ThumbQuality     int
}

// NewProcessor returns a Processor with the default limits.
func NewProcessor() *Processor {
	return &Processor{
		MaxFullLongEdge:  1600,
		MaxThumbLongEdge: 320,
		FullQuality:      75,
		ThumbQuality:     65,
	}
}

// Preprocess resizes and encodes both variants. Resizing is deterministic:
// the same input always produces the same dimensions and bytes.
func (p *Processor) Preprocess(img image.Image) (*Processed, error) {
	full := resizeToLongEdge(img, p.MaxFullLongEdge)
	thumb := resizeToLongEdge(full, p.MaxThumbLongEdge)

	fullData, err := encodeJPEG(full, p.FullQuality)
	if err != nil {
		return nil, fmt.Errorf("encode full image: %w", err)
	}
	thumbData, err := encodeJPEG(thumb, p.ThumbQuality)
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	fb, tb := full.Bounds(), thumb.Bounds()
	return &Processed{
		FullJPEG:      fullData,
		ThumbnailJPEG: thumbData,
		FullWidth:     fb.Dx(),
		FullHeight:    fb.Dy(),
		ThumbWidth:    tb.Dx(),
		ThumbHeight:   tb.Dy(),
	}, nil
}

// PreprocessJPEG decodes raw JPEG bytes and preprocesses the result.
func (p *Processor) PreprocessJPEG(data []byte) (*Processed, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return p.Preprocess(img)
}

// ThumbnailJPEG derives only the thumbnail variant from raw JPEG bytes.
// Used when a stored full image is present but its thumbnail went missing.
func (p *Processor) ThumbnailJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := resizeToLongEdge(img, p.MaxThumbLongEdge)
	return encodeJPEG(thumb, p.ThumbQuality)
}

func resizeToLongEdge(img image.Image, maxLongEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	long := w
	if h > long {
		long = h
	}
	if long <= maxLongEdge {
		return img
	}

	scale := float64(maxLongEdge) / float64(long)
	dw := int(float64(w)*scale + 0.5)
	dh := int(float64(h)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
