package videos

import (
	"context"
	"fmt"
	"time"

	"github.com/mediakit-go/mediakit/internal/images"
	"github.com/mediakit-go/mediakit/internal/naming"
	"github.com/mediakit-go/mediakit/internal/source"
	"github.com/mediakit-go/mediakit/pkg/db/models"
	"github.com/mediakit-go/mediakit/pkg/errors"
)

// FrameType tags image assets extracted from a video.
const FrameType = "frame"

// frameOwner bridges a video owner into the image collection when the owner
// itself declares no image renditions.
type frameOwner struct {
	model    string
	objectID string
}

func (o frameOwner) ModelName() string                             { return o.model }
func (o frameOwner) ObjectKey() string                             { return o.objectID }
func (o frameOwner) ImageDerivatives() map[string]images.Thumbnail { return nil }

func (c *Collection) imageCollection() (*images.Collection, error) {
	if c.svc.images == nil {
		return nil, errors.New(errors.CodeValidation, "frame extraction needs an image service")
	}
	if io, ok := c.owner.(images.Owner); ok {
		return c.svc.images.For(io), nil
	}
	return c.svc.images.For(frameOwner{model: c.model(), objectID: c.objectID()}), nil
}

// stageOriginal copies the stored original to a scratch file for ffmpeg.
func (c *Collection) stageOriginal(ctx context.Context, v *models.Video) (string, func(), error) {
	if !v.IsLocal() {
		return "", nil, errors.New(errors.CodeValidation, "remote videos have no stored bytes")
	}
	disk, err := c.disk("")
	if err != nil {
		return "", nil, err
	}
	data, err := disk.Get(ctx, c.path(v, VariantOriginal, ""))
	if err != nil {
		return "", nil, err
	}
	return stage(data, v.FormatValue())
}

// Frame extracts one frame at the given offset as PNG bytes.
func (c *Collection) Frame(ctx context.Context, v *models.Video, at time.Duration) ([]byte, error) {
	src, cleanup, err := c.stageOriginal(ctx, v)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return c.svc.video.ExtractFrame(ctx, src, at)
}

// CreateFrames extracts n frames spread evenly between start and the clip's
// end and adds them as image assets of the same owner, tagged FrameType.
func (c *Collection) CreateFrames(ctx context.Context, v *models.Video, n int, start time.Duration) ([]*models.Image, error) {
	if n < 1 {
		return nil, errors.New(errors.CodeValidation, "frame count must be positive")
	}
	imgs, err := c.imageCollection()
	if err != nil {
		return nil, err
	}
	src, cleanup, err := c.stageOriginal(ctx, v)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	duration, err := c.svc.video.Duration(ctx, src)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		start = 0
	}
	if start >= duration {
		start = 0
	}

	step := time.Duration(0)
	if n > 1 {
		step = (duration - start) / time.Duration(n)
	}

	base, _ := naming.SplitExt(v.FilenameValue())
	added := make([]*models.Image, 0, n)
	for i := 0; i < n; i++ {
		frame, err := c.svc.video.ExtractFrame(ctx, src, start+step*time.Duration(i))
		if err != nil {
			return added, err
		}
		row, err := imgs.Add(ctx, source.FromBytes(frame, fmt.Sprintf("%s-frame-%d.png", base, i+1)), images.AddOptions{
			Type: FrameType,
		})
		if err != nil {
			return added, err
		}
		added = append(added, row)
	}
	return added, nil
}
