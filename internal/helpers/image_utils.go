package helpers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/rs/zerolog/log"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

const (
	// Maximum image dimensions for compression
	MaxImageWidth  = 800
	MaxImageHeight = 600

	// JPEG quality settings
	HighQuality   = 95
	MediumQuality = 75
	LowQuality    = 50
)

func isJPEGData(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

// CompressAndResizeImage compresses and resizes an image to fit within size limits
func CompressAndResizeImage(img image.Image, maxWidth, maxHeight int, targetSizeBytes int) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty image")
	}

	scale := min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	// Don't upscale images
	if scale > 1.0 {
		scale = 1.0
	}

	newWidth := max(int(float64(width)*scale), 1)
	newHeight := max(int(float64(height)*scale), 1)

	if scale < 1.0 {
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		for y := 0; y < newHeight; y++ {
			for x := 0; x < newWidth; x++ {
				srcX := bounds.Min.X + int(float64(x)/scale)
				srcY := bounds.Min.Y + int(float64(y)/scale)
				resized.Set(x, y, img.At(srcX, srcY))
			}
		}
		img = resized
	}

	// Try different quality levels to meet target size
	for _, quality := range []int{HighQuality, MediumQuality, LowQuality} {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			continue
		}
		if buf.Len() <= targetSizeBytes {
			log.Debug().
				Int("compressed_size", buf.Len()).
				Int("quality", quality).
				Int("width", newWidth).
				Int("height", newHeight).
				Msg("🗜️ Image compressed successfully")
			return buf.Bytes(), nil
		}
	}

	return nil, fmt.Errorf("unable to compress image to %d bytes", targetSizeBytes)
}

// ContextImageB64 shrinks an encoded JPEG frame into a base64 context image
// of at most targetSizeBytes.
func ContextImageB64(frame []byte, targetSizeBytes int) (string, error) {
	if !isJPEGData(frame) {
		return "", fmt.Errorf("context image: frame is not JPEG data")
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return "", fmt.Errorf("context image: decode: %w", err)
	}
	data, err := CompressAndResizeImage(img, MaxImageWidth, MaxImageHeight, targetSizeBytes)
	if err != nil {
		return "", fmt.Errorf("context image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// AddContextImage attaches the frame as a context image to an alert payload.
// Failures are logged and leave the payload without an image.
func AddContextImage(p *models.AlertPayload, frame []byte, targetSizeBytes int) {
	if len(frame) == 0 {
		return
	}
	b64, err := ContextImageB64(frame, targetSizeBytes)
	if err != nil {
		log.Warn().Err(err).Str("camera_id", p.CameraID).Int("target", p.TargetIndex).Msg("Context image skipped")
		return
	}
	p.ContextImage = &b64
}

// PayloadSize is the encoded size of a payload.
func PayloadSize(p *models.AlertPayload) (int, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// OptimizePayloadForSize drops the context image when the payload exceeds
// maxBytes.
func OptimizePayloadForSize(p *models.AlertPayload, maxBytes int) error {
	size, err := PayloadSize(p)
	if err != nil {
		return err
	}
	if size <= maxBytes {
		return nil
	}

	if p.ContextImage != nil {
		log.Warn().Int("payload_size", size).Int("max", maxBytes).Msg("🔧 Payload too large, removing context image")
		p.ContextImage = nil
		if size, err = PayloadSize(p); err != nil {
			return err
		}
	}
	if size > maxBytes {
		return fmt.Errorf("payload size (%d bytes) exceeds maximum allowed size (%d bytes)", size, maxBytes)
	}
	return nil
}
