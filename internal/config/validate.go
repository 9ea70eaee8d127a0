package config

import (
	"errors"
	"fmt"
	"strings"

	"audioconv/internal/models"
)

func (c *Config) Validate() error {
	// Server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535, got %d", models.ErrValidation, c.Server.Port)
	}

	// Queue config
	if strings.TrimSpace(c.Queue.BrokerURL) == "" {
		return fmt.Errorf("%w: queue.broker_url is required", models.ErrValidation)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("%w: queue.name is required", models.ErrValidation)
	}
	if c.Queue.Retention < 0 {
		return fmt.Errorf("%w: queue.retention must not be negative", models.ErrValidation)
	}
	if c.Queue.MaxRetry < 0 {
		return fmt.Errorf("%w: queue.max_retry must not be negative", models.ErrValidation)
	}

	// Worker config
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("%w: worker.concurrency must be a positive integer", models.ErrValidation)
	}
	if len(c.Worker.Queues) == 0 {
		return fmt.Errorf("%w: worker.queues must define at least one queue", models.ErrValidation)
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return fmt.Errorf("%w: worker.queues contains an empty queue name", models.ErrValidation)
		}
		if priority <= 0 {
			return fmt.Errorf("%w: worker.queues priority for queue '%s' must be positive", models.ErrValidation, name)
		}
	}
	if _, ok := c.Worker.Queues[c.Queue.Name]; !ok {
		return fmt.Errorf("%w: worker.queues must include queue.name '%s'", models.ErrValidation, c.Queue.Name)
	}

	// Storage config
	if c.Storage.UploadDir == "" || c.Storage.OutputDir == "" {
		return errors.Join(models.ErrValidation, errors.New("storage.upload_dir and storage.output_dir are required"))
	}

	// Conversion config
	switch c.Conversion.Engine {
	case "copy", "ffmpeg":
	default:
		return fmt.Errorf("%w: conversion.engine must be 'copy' or 'ffmpeg', got '%s'", models.ErrValidation, c.Conversion.Engine)
	}
	if strings.TrimSpace(c.Conversion.OutputFormat) == "" {
		return fmt.Errorf("%w: conversion.output_format is required", models.ErrValidation)
	}

	// Notification config
	if c.Notification.Timeout < 0 {
		return fmt.Errorf("%w: notification.timeout must not be negative", models.ErrValidation)
	}

	// Log config
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be 'text' or 'json', got '%s'", models.ErrValidation, c.Log.Format)
	}

	return nil
}
