package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Converter engine names accepted in conversion.engine.
const (
	EngineCopy   = "copy"
	EngineFFmpeg = "ffmpeg"
)

// Converter turns the bytes of an input file into the bytes of an output file.
type Converter interface {
	Name() string
	Convert(ctx context.Context, src io.Reader, dst io.Writer) error
}

// NewConverter builds the converter selected by engine.
func NewConverter(engine, ffmpegPath, format string) (Converter, error) {
	switch engine {
	case "", EngineCopy:
		return CopyConverter{}, nil
	case EngineFFmpeg:
		if ffmpegPath == "" {
			ffmpegPath = "ffmpeg"
		}
		return &FFmpegConverter{Path: ffmpegPath, Format: format}, nil
	default:
		return nil, fmt.Errorf("unknown conversion engine: %s", engine)
	}
}

// CopyConverter copies the input unchanged. It stands in for real transcoding.
type CopyConverter struct{}

func (CopyConverter) Name() string { return EngineCopy }

func (CopyConverter) Convert(ctx context.Context, src io.Reader, dst io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.Copy(dst, src)
	return err
}

// FFmpegConverter pipes the input through an ffmpeg process.
type FFmpegConverter struct {
	Path   string
	Format string
}

func (c *FFmpegConverter) Name() string { return EngineFFmpeg }

// Args returns the ffmpeg command line after the binary.
func (c *FFmpegConverter) Args() []string {
	return []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0", "-f", c.Format, "pipe:1"}
}

func (c *FFmpegConverter) Convert(ctx context.Context, src io.Reader, dst io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args()...)
	cmd.Stdin = src
	cmd.Stdout = dst
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
