package codec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/errors"
)

// VideoCodec shells out to ffmpeg/ffprobe for transcodes, frame grabs and
// probing. Every invocation is bounded by the configured timeout.
type VideoCodec struct {
	bin      string
	probeBin string
	timeout  time.Duration
	threads  int
}

func NewVideoCodec(cfg config.VideoConfig) *VideoCodec {
	bin := cfg.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	probe := cfg.FFprobeBin
	if probe == "" {
		probe = "ffprobe"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &VideoCodec{bin: bin, probeBin: probe, timeout: timeout, threads: cfg.Threads}
}

func (c *VideoCodec) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, errors.Wrap(errors.CodeCodec, err, fmt.Sprintf("%s failed: %s", bin, msg))
	}
	return stdout.Bytes(), nil
}

// Transcode converts the file at src into format, writing the result to dst.
func (c *VideoCodec) Transcode(ctx context.Context, src, dst, format string, quality int) error {
	args := []string{"-i", src, "-y"}
	if c.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(c.threads))
	}
	switch strings.ToLower(format) {
	case "webm":
		if quality <= 0 {
			quality = 31
		}
		args = append(args, "-c:v", "libvpx-vp9", "-crf", strconv.Itoa(crfFromQuality(quality)), "-b:v", "0")
	case "mp4":
		args = append(args, "-c:v", "libx264", "-crf", strconv.Itoa(crfFromQuality(quality)), "-movflags", "+faststart")
	default:
		// let ffmpeg pick the codec from the destination extension
	}
	args = append(args, dst)

	_, err := c.run(ctx, c.bin, args...)
	return err
}

// crfFromQuality maps the 1-100 quality scale onto ffmpeg's inverted CRF
// scale (0 best, 51 worst).
func crfFromQuality(quality int) int {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return 51 - (quality*51)/100
}

// ExtractFrame grabs one frame at the given offset as PNG bytes. When
// seeking fails (clips shorter than the offset) the first frame is taken.
func (c *VideoCodec) ExtractFrame(ctx context.Context, src string, at time.Duration) ([]byte, error) {
	args := []string{
		"-ss", formatOffset(at),
		"-i", src,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	out, err := c.run(ctx, c.bin, args...)
	if err == nil && len(out) > 0 {
		return out, nil
	}

	out, err = c.run(ctx, c.bin,
		"-i", src,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New(errors.CodeCodec, fmt.Sprintf("ffmpeg produced no output for %s", src))
	}
	return out, nil
}

// Duration probes the container duration of the file at src.
func (c *VideoCodec) Duration(ctx context.Context, src string) (time.Duration, error) {
	out, err := c.run(ctx, c.probeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, errors.Wrap(errors.CodeCodec, err, "parsing ffprobe duration")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func formatOffset(at time.Duration) string {
	if at < 0 {
		at = 0
	}
	total := int(at.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
