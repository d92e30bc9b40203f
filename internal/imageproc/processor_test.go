package imageproc

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestPreprocessBoundsLongEdges(t *testing.T) {
	p := NewProcessor()

	out, err := p.PreprocessJPEG(encodeTestJPEG(t, 3200, 1600))
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}

	if out.FullWidth != 1600 || out.FullHeight != 800 {
		t.Fatalf("full dims = %dx%d, want 1600x800", out.FullWidth, out.FullHeight)
	}
	if out.ThumbWidth != 320 || out.ThumbHeight != 160 {
		t.Fatalf("thumb dims = %dx%d, want 320x160", out.ThumbWidth, out.ThumbHeight)
	}

	// the encoded bytes decode back to the reported dimensions
	w, h := decodeDims(t, out.FullJPEG)
	if w != out.FullWidth || h != out.FullHeight {
		t.Fatalf("encoded full is %dx%d", w, h)
	}
}

func TestPreprocessKeepsSmallImages(t *testing.T) {
	p := NewProcessor()

	out, err := p.PreprocessJPEG(encodeTestJPEG(t, 800, 600))
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if out.FullWidth != 800 || out.FullHeight != 600 {
		t.Fatalf("small image resized to %dx%d", out.FullWidth, out.FullHeight)
	}
}

func TestPreprocessPortraitOrientation(t *testing.T) {
	p := NewProcessor()

	out, err := p.PreprocessJPEG(encodeTestJPEG(t, 1600, 3200))
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if out.FullWidth != 800 || out.FullHeight != 1600 {
		t.Fatalf("portrait dims = %dx%d, want 800x1600", out.FullWidth, out.FullHeight)
	}
}

func TestThumbnailJPEG(t *testing.T) {
	p := NewProcessor()

	thumb, err := p.ThumbnailJPEG(encodeTestJPEG(t, 1000, 500))
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	w, h := decodeDims(t, thumb)
	if w != 320 || h != 160 {
		t.Fatalf("thumb dims = %dx%d, want 320x160", w, h)
	}
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	p := NewProcessor()
	if _, err := p.PreprocessJPEG([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}
