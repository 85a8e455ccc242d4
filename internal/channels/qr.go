package channels

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/skip2/go-qrcode"
)

// QRPresenter shows pairing codes to the operator.
type QRPresenter struct {
	// Out receives a terminal rendering; nil disables it.
	Out io.Writer
	// File receives a PNG rendering; empty disables it.
	File string
}

// Present renders code to the configured outputs.
func (p *QRPresenter) Present(code string) error {
	if p == nil || code == "" {
		return nil
	}
	if p.Out != nil {
		qr, err := qrcode.New(code, qrcode.Low)
		if err != nil {
			return fmt.Errorf("encode qr: %w", err)
		}
		fmt.Fprintln(p.Out, "WhatsApp: Scan this QR code to login:")
		fmt.Fprint(p.Out, qr.ToSmallString(false))
	}
	if p.File != "" {
		if err := os.MkdirAll(filepath.Dir(p.File), 0700); err != nil {
			return fmt.Errorf("qr dir: %w", err)
		}
		if err := qrcode.WriteFile(code, qrcode.Medium, 512, p.File); err != nil {
			return fmt.Errorf("write qr file: %w", err)
		}
		if p.Out != nil {
			fmt.Fprintf(p.Out, "QR code saved to: %s\n", p.File)
		}
	}
	return nil
}

// QRPNG renders code as a PNG of the given size.
func QRPNG(code string, size int) ([]byte, error) {
	return qrcode.Encode(code, qrcode.Medium, size)
}
