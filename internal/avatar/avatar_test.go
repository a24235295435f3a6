package avatar

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/dvloznov/finance-admin/internal/archive/archivetest"
	"github.com/dvloznov/finance-admin/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		maxDim  int
		wantW   int
		wantH   int
		wantErr bool
	}{
		{name: "small png kept", data: archivetest.PNG(t, 40, 20), maxDim: 512, wantW: 40, wantH: 20},
		{name: "large png scaled", data: archivetest.PNG(t, 1024, 512), maxDim: 256, wantW: 256, wantH: 128},
		{name: "zero max uses default", data: archivetest.PNG(t, 600, 600), maxDim: 0, wantW: DefaultMaxDimension, wantH: DefaultMaxDimension},
		{name: "not a png", data: []byte("GIF89a not really"), maxDim: 512, wantErr: true},
		{name: "truncated png", data: archivetest.PNG(t, 10, 10)[:30], maxDim: 512, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Normalize(tt.data, tt.maxDim)
			if tt.wantErr {
				var verr *domain.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			img, err := imaging.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output does not decode: %v", err)
			}
			if got := img.Bounds().Size(); got != (image.Point{X: tt.wantW, Y: tt.wantH}) {
				t.Errorf("size = %v, want %dx%d", got, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestNormalize_RejectsHugeDimensions(t *testing.T) {
	// Blank pixels compress to almost nothing, so the file stays small.
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8192, 2049))); err != nil {
		t.Fatal(err)
	}

	_, err := Normalize(buf.Bytes(), 512)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Message, "8192x2049") {
		t.Errorf("message = %q, want the dimensions", verr.Message)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	src := archivetest.PNG(t, 64, 64)
	a, err := Normalize(src, 512)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize(src, 512)
	if err != nil {
		t.Fatal(err)
	}
	if Key(a) != Key(b) {
		t.Error("same input produced different keys")
	}
}

func TestValidKey(t *testing.T) {
	good := Key([]byte("x"))
	tests := map[string]bool{
		good:               true,
		"../etc/passwd":    false,
		"abc.png":          false,
		good[:64] + ".jpg": false,
		"zz" + good[2:]:    false,
	}
	for name, want := range tests {
		if got := ValidKey(name); got != want {
			t.Errorf("ValidKey(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDiskStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("png bytes")
	name := Key(data)
	if err := s.Save(ctx, name, data); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rc, err := s.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, data) {
		t.Errorf("read %q, want %q", got, data)
	}

	_, err = s.Open(ctx, Key([]byte("missing")))
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	if err := s.Save(ctx, "../escape.png", data); err == nil {
		t.Error("expected error for invalid name")
	}
}
