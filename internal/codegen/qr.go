package codegen

import (
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// ValidQRSizes are the PNG edge lengths we render, in pixels.
var ValidQRSizes = map[int]bool{
	256:  true,
	512:  true,
	1024: true,
}

const DefaultQRSize = 256

// ErrQRSize is returned for a size outside ValidQRSizes.
var ErrQRSize = errors.New("codegen: QR size must be 256, 512 or 1024")

// QRPNG renders content as a PNG QR code.
//
// Medium recovery survives a scratched or partly covered print without
// pushing short URLs into a denser symbol version.
func QRPNG(content string, size int) ([]byte, error) {
	if !ValidQRSizes[size] {
		return nil, ErrQRSize
	}
	if content == "" {
		return nil, errors.New("codegen: QR content cannot be empty")
	}

	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("codegen: creating QR code: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("codegen: encoding QR PNG: %w", err)
	}
	return png, nil
}
