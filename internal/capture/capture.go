// Package capture renders a web page into a frame with headless Chromium.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"time"

	"github.com/chromedp/chromedp"

	"epd2271/internal/convert"
	"epd2271/internal/log"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultReadySelector = "body"
	settleDelay          = 500 * time.Millisecond
)

// URLSource screenshots URL at the frame size and dithers the result.
type URLSource struct {
	URL string
	// ReadySelector is waited for before the screenshot. Pages that load
	// data asynchronously can expose e.g. `[data-ready="true"]`.
	ReadySelector string
	Dither        convert.Dither
	Timeout       time.Duration
}

// Render implements display.Source.
func (s *URLSource) Render(ctx context.Context, dst draw.Image) error {
	if s.URL == "" {
		return errors.New("capture: URL is required")
	}
	b := dst.Bounds()
	png, err := s.screenshot(ctx, b.Dx(), b.Dy())
	if err != nil {
		return err
	}
	return decodeInto(dst, png, s.Dither)
}

func (s *URLSource) String() string {
	return "url:" + s.URL
}

func (s *URLSource) screenshot(parent context.Context, w, h int) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ready := s.ReadySelector
	if ready == "" {
		ready = DefaultReadySelector
	}

	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	start := time.Now()
	var png []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(w), int64(h)),
		chromedp.Navigate(s.URL),
		chromedp.WaitVisible(ready, chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.CaptureScreenshot(&png),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	log.Debug("capture: screenshot", "url", s.URL, "bytes", len(png), "elapsed", time.Since(start).Round(time.Millisecond))
	return png, nil
}

func decodeInto(dst draw.Image, data []byte, d convert.Dither) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("capture: decode screenshot: %w", err)
	}
	convert.Into(dst, img, d)
	return nil
}
