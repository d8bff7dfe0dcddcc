package media

import (
	"bytes"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/kimhsiao/techniquebook/internal/errors"
	"github.com/kimhsiao/techniquebook/internal/models"
)

// Thumbnail renders a JPEG thumbnail of the stored image fileName, fitted into the
// store's thumbnail box with aspect ratio kept. Videos and undecodable files yield
// false.
func (s *FileStore) Thumbnail(fileName string) ([]byte, bool) {
	if TypeOf(fileName) == models.MediaTypeVideo {
		return nil, false
	}
	data, ok := s.Load(fileName)
	if !ok {
		return nil, false
	}
	thumb, err := Thumbnail(data, s.thumbnailSize)
	if err != nil {
		s.log.Warn("thumbnail failed", map[string]interface{}{"file": fileName, "error": err.Error()})
		return nil, false
	}
	return thumb, true
}

// Thumbnail decodes an image (jpeg, png, gif or webp), applies its EXIF orientation
// and fits it into a size x size box. The result is JPEG encoded.
func Thumbnail(data []byte, size int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrMedia, "failed to decode image", err)
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, errors.Wrap(errors.ErrMedia, "failed to encode thumbnail", err)
	}
	return buf.Bytes(), nil
}
