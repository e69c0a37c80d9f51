package pipeline

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gabriel-vasile/mimetype"

	"github.com/spachava753/sitebuild/internal/models"
	"github.com/spachava753/sitebuild/internal/util"
)

// OptimizeImage losslessly recompresses PNG images and returns other images
// unchanged. The result is never larger than the input.
func OptimizeImage(data []byte) ([]byte, error) {
	if !mimetype.Detect(data).Is("image/png") {
		return data, nil
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding png: %w", err)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	if buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}

func (st *state) optimize(step models.Step) error {
	maxSize, err := util.ParseSize(step.MaxSize)
	if err != nil {
		return &models.BuildError{Type: models.ErrConfig, Task: st.task.cat.Name, Message: err.Error(), Err: err}
	}

	for _, f := range st.files {
		if maxSize > 0 && int64(len(f.Contents)) > maxSize {
			st.logger.Debug("image above max_size, copied as is", "path", f.Path, "size", len(f.Contents))
			continue
		}
		out, err := OptimizeImage(f.Contents)
		if err != nil {
			st.logger.Warn("image could not be optimized, copied as is", "path", f.Path, "error", err)
			continue
		}
		if len(out) < len(f.Contents) {
			st.logger.Debug("optimized image", "path", f.Path, "before", len(f.Contents), "after", len(out))
		}
		f.Contents = out
	}
	return nil
}
