package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotImage is returned by ReadImage for files that are not images
var ErrNotImage = errors.New("not an image")

// ImageInfo is an image inlined for the preview pane
type ImageInfo struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// ReadImage loads the file at path and returns it base64 encoded together
// with its sniffed MIME type.
func (o *Orchestrator) ReadImage(path string) (ImageInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("read image: %w", err)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ImageInfo{}, fmt.Errorf("%s is %s: %w", path, mt.String(), ErrNotImage)
	}

	return ImageInfo{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: mt.String(),
	}, nil
}
