// Package archivetest builds import archives for tests.
package archivetest

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// Entry is one file written into a test archive.
type Entry struct {
	Name string
	Body []byte
}

// Build returns the bytes of a ZIP archive holding entries in order.
func Build(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("archivetest: create %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Body); err != nil {
			t.Fatalf("archivetest: write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("archivetest: close: %v", err)
	}
	return buf.Bytes()
}

// Standard builds an archive with the given userData.json and transactions.json
// bodies, plus avatar.png when avatar is non-nil.
func Standard(t testing.TB, userData, transactions string, avatar []byte) []byte {
	t.Helper()

	entries := []Entry{
		{Name: "userData.json", Body: []byte(userData)},
		{Name: "transactions.json", Body: []byte(transactions)},
	}
	if avatar != nil {
		entries = append(entries, Entry{Name: "avatar.png", Body: avatar})
	}
	return Build(t, entries...)
}

// PNG returns an encoded w x h PNG image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("archivetest: encode png: %v", err)
	}
	return buf.Bytes()
}
