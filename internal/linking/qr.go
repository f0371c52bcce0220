package linking

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderQR draws payload as a QR code using half-block characters.
// invert swaps dark and light for terminals with light backgrounds.
func RenderQR(payload string, invert bool) (string, error) {
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode QR code: %w", err)
	}
	return q.ToSmallString(invert), nil
}

// WritePNG writes payload as a size x size PNG.
func WritePNG(payload, path string, size int) error {
	if err := qrcode.WriteFile(payload, qrcode.Medium, size, path); err != nil {
		return fmt.Errorf("write QR code: %w", err)
	}
	return nil
}
