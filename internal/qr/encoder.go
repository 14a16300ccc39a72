// Package qr renders session links as scannable images. It is a pure
// encoder: the payload it carries is decided entirely by the caller.
package qr

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// Encoder turns an already-decided payload into a scannable image. Swappable
// so the image format can change without touching the attendance logic.
type Encoder interface {
	DataURL(payload string) (string, error)
}

// PNGEncoder encodes payloads as base64 PNG data URLs, sized for inline
// display in the browser client.
type PNGEncoder struct {
	Size int
}

func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{Size: 256}
}

func (e *PNGEncoder) DataURL(payload string) (string, error) {
	size := e.Size
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
