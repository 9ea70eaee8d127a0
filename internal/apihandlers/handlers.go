package apihandlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"audioconv/internal/app"
	"audioconv/internal/metrics"
	"audioconv/internal/models"
	"audioconv/internal/store"
	"audioconv/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Response messages.
const (
	MsgNoFileProvided  = "No file provided"
	MsgNoFileSelected  = "No file selected"
	MsgFileNotFound    = "File not found"
	MsgConversionStart = "Audio conversion started"
	MsgTaskWaiting     = "Task is waiting to be processed"
)

type APIHandler struct {
	ServiceName string
	QueueName   string
	Blobs       store.BlobStore
	Queue       store.TaskQueue
	Jobs        store.JobStore // optional
	Metrics     *metrics.Collector
}

func NewAPIHandler(a *app.App) *APIHandler {
	return &APIHandler{
		ServiceName: a.Config.Service.Name,
		QueueName:   a.Config.Queue.Name,
		Blobs:       a.Blobs,
		Queue:       a.TaskQueue,
		Jobs:        a.JobStore,
		Metrics:     a.Metrics,
	}
}

// HealthHandler reports liveness. It touches no dependency.
func (h *APIHandler) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": h.ServiceName})
}

// ConvertHandler stores the uploaded file and enqueues its conversion.
func (h *APIHandler) ConvertHandler(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		h.Metrics.RecordUpload(metrics.OutcomeRejected)
		// A part named "file" without a filename is parsed as a plain form value.
		if c.Request.MultipartForm != nil {
			if _, ok := c.Request.MultipartForm.Value["file"]; ok {
				BadRequest(c, MsgNoFileSelected)
				return
			}
		}
		BadRequest(c, MsgNoFileProvided)
		return
	}

	filename := sanitizeFilename(fh.Filename)
	if filename == "" {
		h.Metrics.RecordUpload(metrics.OutcomeRejected)
		BadRequest(c, MsgNoFileSelected)
		return
	}

	ctx := c.Request.Context()
	logger := log.WithField("filename", filename)

	src, err := fh.Open()
	if err != nil {
		h.Metrics.RecordUpload(metrics.OutcomeFailed)
		Internal(c, fmt.Sprintf("failed to read upload: %v", err))
		return
	}
	defer src.Close()

	key := uuid.NewString() + "/" + filename
	if _, err := h.Blobs.Put(ctx, store.AreaUploads, key, src); err != nil {
		if errors.Is(err, store.ErrInvalidName) {
			h.Metrics.RecordUpload(metrics.OutcomeRejected)
			BadRequest(c, MsgNoFileSelected)
			return
		}
		h.Metrics.RecordUpload(metrics.OutcomeFailed)
		logger.Errorf("Failed to store upload: %v", err)
		Internal(c, "failed to store upload")
		return
	}

	taskID, err := h.Queue.Submit(ctx, tasks.ConversionPayload{Input: key, Filename: filename})
	if err != nil {
		h.Metrics.RecordUpload(metrics.OutcomeFailed)
		logger.Errorf("Failed to enqueue conversion: %v", err)
		if rmErr := h.Blobs.Remove(ctx, store.AreaUploads, key); rmErr != nil {
			logger.Warnf("Failed to remove orphaned upload %s: %v", key, rmErr)
		}
		Internal(c, "failed to enqueue conversion")
		return
	}

	h.Metrics.RecordUpload(metrics.OutcomeAccepted)
	h.Metrics.RecordEnqueue()
	h.recordEnqueue(c, taskID, key, filename)
	logger.WithField("task_id", taskID).Info("Conversion accepted")

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"task_id": taskID,
		"message": MsgConversionStart,
	})
}

func (h *APIHandler) recordEnqueue(c *gin.Context, taskID, key, filename string) {
	if h.Jobs == nil {
		return
	}
	jobID, err := uuid.Parse(taskID)
	if err != nil {
		log.Debugf("Task id %q is not a UUID, not recording job history", taskID)
		return
	}
	err = h.Jobs.RecordJobEnqueue(c.Request.Context(), store.JobRecordParams{
		JobID:    jobID,
		TaskType: models.TaskTypeConversion,
		InputRef: store.Ref(store.AreaUploads, key),
		Filename: filename,
		Queue:    h.QueueName,
		Status:   models.JobStatusEnqueued,
	})
	if err != nil {
		log.Warnf("Failed to record job %s: %v", taskID, err)
	}
}

// StatusHandler reports the state of a job. Unknown ids read as PENDING.
func (h *APIHandler) StatusHandler(c *gin.Context) {
	taskID := c.Param("task_id")
	job, err := h.Queue.Lookup(c.Request.Context(), taskID)
	if err != nil {
		log.WithField("task_id", taskID).Errorf("Status lookup failed: %v", err)
		Internal(c, "failed to look up task")
		return
	}

	switch job.State {
	case models.JobStatePending:
		c.JSON(http.StatusOK, gin.H{"state": job.State, "status": MsgTaskWaiting})
	case models.JobStateSuccess:
		c.JSON(http.StatusOK, gin.H{"state": job.State, "result": job.Result})
	default:
		c.JSON(http.StatusOK, gin.H{"state": job.State, "status": job.Info})
	}
}

// DownloadHandler streams a converted file as an attachment.
func (h *APIHandler) DownloadHandler(c *gin.Context) {
	name := c.Param("filename")
	rc, info, err := h.Blobs.Open(c.Request.Context(), store.AreaOutputs, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidName) {
			h.Metrics.RecordDownload(metrics.OutcomeNotFound)
			NotFound(c, MsgFileNotFound)
			return
		}
		log.WithField("filename", name).Errorf("Failed to open output: %v", err)
		Internal(c, "failed to open file")
		return
	}
	defer rc.Close()

	h.Metrics.RecordDownload(metrics.OutcomeServed)
	c.DataFromReader(http.StatusOK, info.Size, contentType(name), rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": name}),
	})
}

// NoRouteHandler keeps unmatched paths on the JSON error format.
func (h *APIHandler) NoRouteHandler(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/download/") {
		h.Metrics.RecordDownload(metrics.OutcomeNotFound)
		NotFound(c, MsgFileNotFound)
		return
	}
	NotFound(c, "Not found")
}

// sanitizeFilename reduces a client supplied name to its last path element.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// audioTypes are not in Go's builtin table and missing from minimal images.
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}

func init() {
	for ext, typ := range audioTypes {
		if err := mime.AddExtensionType(ext, typ); err != nil {
			log.Warnf("Failed to register MIME type for %s: %v", ext, err)
		}
	}
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
