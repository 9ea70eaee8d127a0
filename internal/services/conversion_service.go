package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"audioconv/internal/metrics"
	"audioconv/internal/models"
	"audioconv/internal/store"

	log "github.com/sirupsen/logrus"
)

// Messages carried by error results.
const (
	MsgInputNotFound          = "Input file not found"
	MsgProcessingFailedPrefix = "File processing failed: "
)

// ConversionServiceDeps holds dependencies for ConversionService.
type ConversionServiceDeps struct {
	Blobs        store.BlobStore
	Converter    Converter
	Notifier     Notifier // nil disables notification
	Metrics      *metrics.Collector
	OutputFormat string // extension of produced files, e.g. "mp3"
	Suffix       string // appended to the input base name, e.g. "_converted"
}

// ConversionService runs one conversion job from an uploaded blob to its outputs.
type ConversionService struct {
	blobs     store.BlobStore
	converter Converter
	notifier  Notifier
	metrics   *metrics.Collector
	format    string
	suffix    string
}

func NewConversionService(deps ConversionServiceDeps) *ConversionService {
	converter := deps.Converter
	if converter == nil {
		converter = CopyConverter{}
	}
	format := deps.OutputFormat
	if format == "" {
		format = "mp3"
	}
	return &ConversionService{
		blobs:     deps.Blobs,
		converter: converter,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		format:    format,
		suffix:    deps.Suffix,
	}
}

// OutputName derives the output filename from an input key:
// "abc/song.wav" -> "song_converted.mp3".
func OutputName(input, suffix, format string) string {
	base := path.Base(input)
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "" {
		name = base
	}
	return name + suffix + "." + format
}

// Convert processes the upload stored under input. It always returns a
// terminal result; failures and panics become the error variant.
func (s *ConversionService) Convert(ctx context.Context, input string) (result models.ConversionResult) {
	start := time.Now()
	logger := log.WithField("input", input)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Conversion panicked: %v", r)
			result = models.ErrorResult(fmt.Sprint(r))
		}
		s.metrics.RecordJobFinished(string(result.Status), time.Since(start))
	}()

	logger.Info("Processing audio file")

	ok, err := s.blobs.Exists(ctx, store.AreaUploads, input)
	if err != nil {
		logger.Errorf("Error checking input: %v", err)
		return models.ErrorResult(err.Error())
	}
	if !ok {
		logger.Warn("Input file not found")
		return models.ErrorResult(MsgInputNotFound)
	}

	ref, err := s.process(ctx, input, OutputName(input, s.suffix, s.format))
	if err != nil {
		logger.Errorf("File processing error: %v", fmt.Errorf("%w: %w", models.ErrProcessing, err))
		return models.ErrorResult(MsgProcessingFailedPrefix + err.Error())
	}
	logger.WithField("output", ref).Info("Output written")

	outputs := []string{ref}
	if s.notifier != nil && len(outputs) > 0 {
		s.notifier.NotifyConversion(ctx, len(outputs), outputs)
	}
	return models.CompletedResult(outputs)
}

// process streams the input through the converter into an atomically committed output.
func (s *ConversionService) process(ctx context.Context, input, outputName string) (string, error) {
	src, _, err := s.blobs.Open(ctx, store.AreaUploads, input)
	if err != nil {
		return "", err
	}
	defer src.Close()

	w, err := s.blobs.Create(ctx, store.AreaOutputs, outputName)
	if err != nil {
		return "", err
	}
	// No-op once committed; also runs when the converter panics.
	defer func() {
		if abortErr := w.Abort(); abortErr != nil {
			log.Warnf("Failed to discard partial output %s: %v", outputName, abortErr)
		}
	}()
	if err := s.converter.Convert(ctx, src, w); err != nil {
		return "", err
	}
	return w.Commit()
}
