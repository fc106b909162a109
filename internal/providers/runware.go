package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/orchestrator"
	"github.com/genstudio/backend/internal/pricing"
)

const (
	DefaultRunwareURL = "https://api.runware.ai/v1"

	runwareRetries       = 3
	defaultImageSide     = 1024
	taskImageInference   = "imageInference"
	taskVideoInference   = "videoInference"
	taskGetResponse      = "getResponse"
	runwareStatusSuccess = "success"
	runwareStatusError   = "error"
	runwareStatusFailed  = "failed"
)

var uuidPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

type runwareTask struct {
	TaskType         string                    `json:"taskType"`
	TaskUUID         string                    `json:"taskUUID"`
	Model            string                    `json:"model,omitempty"`
	PositivePrompt   string                    `json:"positivePrompt,omitempty"`
	Width            int                       `json:"width,omitempty"`
	Height           int                       `json:"height,omitempty"`
	Duration         int                       `json:"duration,omitempty"`
	NumberResults    int                       `json:"numberResults,omitempty"`
	OutputType       string                    `json:"outputType,omitempty"`
	OutputFormat     string                    `json:"outputFormat,omitempty"`
	DeliveryMethod   string                    `json:"deliveryMethod,omitempty"`
	IncludeCost      bool                      `json:"includeCost,omitempty"`
	Seed             *int64                    `json:"seed,omitempty"`
	SeedImage        string                    `json:"seedImage,omitempty"`
	FrameImages      []runwareFrame            `json:"frameImages,omitempty"`
	ProviderSettings map[string]map[string]any `json:"providerSettings,omitempty"`
}

type runwareFrame struct {
	InputImage string `json:"inputImage"`
	Frame      string `json:"frame"`
}

type runwareResponse struct {
	Data []struct {
		TaskType string           `json:"taskType"`
		TaskUUID string           `json:"taskUUID"`
		Status   string           `json:"status"`
		ImageURL string           `json:"imageURL"`
		VideoURL string           `json:"videoURL"`
		Cost     *decimal.Decimal `json:"cost"`
	} `json:"data"`
	Errors []runwareError `json:"errors"`
}

type runwareError struct {
	TaskUUID string `json:"taskUUID"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

func (e runwareError) text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	case e.Code != "":
		return e.Code
	}
	return "unknown error"
}

// Runware is a client for the Runware task API. Images complete inline;
// videos are delivered asynchronously and polled with getResponse.
type Runware struct {
	apiKey  string
	baseURL string
	http    *http.Client
	backoff func() backoff.BackOff
	log     *slog.Logger
}

func NewRunware(apiKey, baseURL string, client *http.Client, log *slog.Logger) *Runware {
	if baseURL == "" {
		baseURL = DefaultRunwareURL
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runware{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    client,
		backoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		log:     log,
	}
}

func (c *Runware) Submit(ctx context.Context, req orchestrator.ProviderRequest) (orchestrator.Submission, error) {
	task := c.buildTask(req)
	// Resubmitting after a transport error could start the task twice.
	resp, err := c.send(ctx, task, false)
	if err != nil {
		return orchestrator.Submission{}, err
	}
	if len(resp.Errors) > 0 {
		return orchestrator.Submission{}, fmt.Errorf("%w: runware: %s", apperr.ErrProvider, resp.Errors[0].text())
	}

	if task.TaskType == taskVideoInference {
		c.log.InfoContext(ctx, "runware video task started", "task_uuid", task.TaskUUID, "model", task.Model)
		return orchestrator.Submission{TaskHandle: task.TaskUUID}, nil
	}

	for _, d := range resp.Data {
		if d.ImageURL == "" {
			continue
		}
		return orchestrator.Submission{Result: &orchestrator.Result{URL: d.ImageURL, Cost: usdToCredits(d.Cost)}}, nil
	}
	return orchestrator.Submission{}, fmt.Errorf("%w: runware returned no image", apperr.ErrProvider)
}

func (c *Runware) Poll(ctx context.Context, _ string, taskHandle string) (orchestrator.PollResult, error) {
	resp, err := c.send(ctx, runwareTask{TaskType: taskGetResponse, TaskUUID: taskHandle}, true)
	if err != nil {
		return orchestrator.PollResult{}, err
	}
	for _, e := range resp.Errors {
		if e.TaskUUID == "" || e.TaskUUID == taskHandle {
			return orchestrator.PollResult{State: orchestrator.PollFailed, Reason: e.text()}, nil
		}
	}
	for _, d := range resp.Data {
		if d.TaskUUID != "" && d.TaskUUID != taskHandle {
			continue
		}
		switch {
		case d.Status == runwareStatusError || d.Status == runwareStatusFailed:
			return orchestrator.PollResult{State: orchestrator.PollFailed, Reason: "runware task failed"}, nil
		case d.Status == runwareStatusSuccess || d.VideoURL != "":
			return orchestrator.PollResult{State: orchestrator.PollSucceeded, URL: d.VideoURL, Cost: usdToCredits(d.Cost)}, nil
		}
	}
	return orchestrator.PollResult{State: orchestrator.PollPending}, nil
}

func (c *Runware) buildTask(req orchestrator.ProviderRequest) runwareTask {
	task := runwareTask{
		TaskUUID:       req.GenerationID.String(),
		Model:          req.ProviderModel,
		PositivePrompt: req.Prompt,
		IncludeCost:    true,
		OutputType:     "URL",
		Seed:           req.Seed,
	}
	if !models.IsVideoType(req.Type) {
		task.TaskType = taskImageInference
		task.NumberResults = 1
		task.OutputFormat = "WEBP"
		task.Width, task.Height = req.Width, req.Height
		if task.Width == 0 {
			task.Width, task.Height = defaultImageSide, defaultImageSide
		}
		if req.InputImage != "" {
			task.SeedImage = normalizeImage(req.InputImage)
		}
		return task
	}

	family := modelFamily(req.ProviderModel)
	task.TaskType = taskVideoInference
	task.Duration = req.DurationSeconds
	task.DeliveryMethod = "async"
	task.OutputFormat = "MP4"
	if req.InputImage != "" {
		task.FrameImages = []runwareFrame{{InputImage: normalizeImage(req.InputImage), Frame: "first"}}
	}
	// ByteDance rejects explicit dimensions alongside frame images.
	if !(family == "bytedance" && req.InputImage != "") {
		task.Width, task.Height = req.Width, req.Height
	}
	switch family {
	case "google", "openai":
		task.ProviderSettings = map[string]map[string]any{family: {"generateAudio": req.Audio}}
	case "bytedance":
		task.ProviderSettings = map[string]map[string]any{family: {"cameraFixed": req.CameraFixed}}
	case "minimax":
		task.ProviderSettings = map[string]map[string]any{family: {"promptOptimizer": req.PromptOptimizer}}
	}
	return task
}

// send posts one task. Rate limits and 5xx are always retried; transport
// errors only when retryTransport is set.
func (c *Runware) send(ctx context.Context, task runwareTask, retryTransport bool) (*runwareResponse, error) {
	body, err := json.Marshal([]runwareTask{task})
	if err != nil {
		return nil, fmt.Errorf("encode runware task: %w", err)
	}

	var out runwareResponse
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			err = fmt.Errorf("%w: runware: %w", apperr.ErrProviderUnavailable, err)
			if !retryTransport {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("%w: runware returned %d", apperr.ErrProviderUnavailable, resp.StatusCode)
		case resp.StatusCode >= 400:
			var e runwareResponse
			if json.Unmarshal(raw, &e) == nil && len(e.Errors) > 0 {
				return backoff.Permanent(fmt.Errorf("%w: runware: %s", apperr.ErrProvider, e.Errors[0].text()))
			}
			return backoff.Permanent(fmt.Errorf("%w: runware returned %d: %s", apperr.ErrProvider, resp.StatusCode, strings.TrimSpace(string(raw))))
		}

		out = runwareResponse{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode runware response: %w", apperr.ErrProviderUnavailable, err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), runwareRetries), ctx)
	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.log.WarnContext(ctx, "runware request failed, retrying", "task_type", task.TaskType, "wait", wait, "error", err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, apperr.ErrProviderUnavailable) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrProviderUnavailable, ctxErr)
		}
		return nil, err
	}
	return &out, nil
}

func usdToCredits(cost *decimal.Decimal) *int64 {
	if cost == nil {
		return nil
	}
	credits := pricing.CreditsFromUSD(*cost)
	return &credits
}

// modelFamily returns the upstream vendor of an AIR model id such as
// "bytedance:2@1".
func modelFamily(model string) string {
	family, _, _ := strings.Cut(model, ":")
	return family
}

// normalizeImage turns raw base64 into a data URI. URLs, data URIs and
// uploaded image UUIDs pass through.
func normalizeImage(img string) string {
	if strings.HasPrefix(img, "data:") || strings.HasPrefix(img, "http") || uuidPattern.MatchString(img) {
		return img
	}
	mime := "image/jpeg"
	switch {
	case strings.HasPrefix(img, "iVBORw0KGgo"):
		mime = "image/png"
	case strings.HasPrefix(img, "UklGR"):
		mime = "image/webp"
	}
	return "data:" + mime + ";base64," + img
}

var _ orchestrator.Gateway = (*Runware)(nil)
