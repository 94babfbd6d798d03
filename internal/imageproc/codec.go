package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // webp читаем, но не пишем - на выходе будет jpeg
)

var formatCType = map[string]string{
	"jpeg": model.JPEG,
	"png":  model.PNG,
	"gif":  model.GIF,
	"bmp":  model.BMP,
	"tiff": model.TIFF,
	"webp": model.WEBP,
}

// DecodeImage decodes a supported still image and returns it with its detected content type.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	if r == nil {
		return nil, "", errors.New("nil-reader provided to DecodeImage")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	_, f, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)
	}
	cType, ok := formatCType[f]
	if !ok {
		return nil, "", model.ErrUnsupportedFormat
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s image: %w", f, err)
	}
	return img, cType, nil
}

// DecodeImageConfig reads only the header: content type and natural dimensions.
func DecodeImageConfig(data []byte) (string, int, int, error) {
	cfg, f, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)
	}
	cType, ok := formatCType[f]
	if !ok {
		return "", 0, 0, model.ErrUnsupportedFormat
	}
	return cType, cfg.Width, cfg.Height, nil
}

// EncodeImage encodes img preserving cType where an encoder exists, JPEG otherwise.
// A failed encode is retried once as JPEG. Returns the content type actually written.
func EncodeImage(img image.Image, cType string, quality int) ([]byte, string, error) {
	format, ok := model.GetFormat[cType]
	if !ok {
		format = imaging.JPEG
	}

	data, err := encode(img, format, quality)
	if err == nil {
		return data, model.GetCType[format], nil
	}
	if format == imaging.JPEG {
		return nil, "", fmt.Errorf("encode result image: %w", err)
	}

	data, fbErr := encode(img, imaging.JPEG, quality)
	if fbErr != nil {
		return nil, "", fmt.Errorf("encode result image as %s: %w; jpeg fallback: %w", cType, err, fbErr)
	}
	return data, model.JPEG, nil
}

// EncodePNG - превью всегда отдаем в png
func EncodePNG(img image.Image) ([]byte, error) {
	return encode(img, imaging.PNG, 0)
}

func encode(img image.Image, format imaging.Format, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image provided to encoder")
	}
	opts := []imaging.EncodeOption{}
	if format == imaging.JPEG && quality > 0 {
		opts = append(opts, imaging.JPEGQuality(quality))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
