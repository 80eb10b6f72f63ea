package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Instagram feed images are at most 1440px wide.
const maxImageWidth = 1440

var allowedMedia = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "mp4": {}, "mov": {},
}

// MediaService turns uploaded files into public URLs the Graph API can fetch.
type MediaService interface {
	Upload(ctx context.Context, files []*multipart.FileHeader) ([]string, error)
	UploadBytes(ctx context.Context, data []byte) (string, error)
}

type mediaService struct {
	uploader  ObjectUploader
	publicURL string
}

func NewMediaService(uploader ObjectUploader, publicURL string) MediaService {
	return &mediaService{uploader: uploader, publicURL: publicURL}
}

// Upload stores files in order and returns their URLs in the same order.
func (s *mediaService) Upload(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		u, err := s.UploadBytes(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// UploadBytes sniffs the content, recompresses images to JPEG and stores the
// result under a random key.
func (s *mediaService) UploadBytes(ctx context.Context, data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return "", fmt.Errorf("unsupported file type")
	}
	if _, ok := allowedMedia[kind.Extension]; !ok {
		return "", fmt.Errorf("file type %s is not allowed", kind.Extension)
	}

	ext, contentType := kind.Extension, kind.MIME.Value
	if filetype.IsImage(data) {
		data, err = compressImage(data)
		if err != nil {
			return "", err
		}
		ext, contentType = "jpg", "image/jpeg"
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s.%s", id, ext)
	if err := s.uploader.Upload(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("error uploading file: %w", err)
	}
	return fmt.Sprintf("%s/%s", s.publicURL, key), nil
}

func compressImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}
	if img.Bounds().Dx() > maxImageWidth {
		img = imaging.Resize(img, maxImageWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("error encoding image: %w", err)
	}
	return buf.Bytes(), nil
}
