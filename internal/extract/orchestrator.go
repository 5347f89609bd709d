package extract

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/jmercadier/amortization-extractor/constants"
	"github.com/jmercadier/amortization-extractor/internal/common"
	"github.com/jmercadier/amortization-extractor/internal/resilience"
)

// DispatchRequest carries the in-memory file to the extraction API
// collaborator. The byte buffer is owned exclusively by the in-flight call
// and is eligible for release once the Result is produced.
type DispatchRequest struct {
	FileBytes []byte
	Filename  string
}

// Dispatcher is the extraction API collaborator boundary: send bytes,
// receive an opaque payload, may time out or error. Transport and auth
// details live behind it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (RawResponse, error)
}

// Config is the orchestrator's explicit configuration; there is no hidden
// global state.
type Config struct {
	KeyPaths []string
	Synonyms []Synonym
	Fallback FallbackParser
	Retry    resilience.RetryConfig
}

// Result is the successful-or-partial outcome envelope. Attempts counts
// dispatches actually made, including the failed ones; it is filled in on
// failure too.
type Result struct {
	Table    *Table
	Attempts int
	Warnings []string
	Elapsed  time.Duration
}

// Orchestrator drives one extraction end to end:
// Dispatching -> AwaitingResponse -> Parsing -> Validating -> Done/Failed.
// Each call is independent and stateless; concurrent extractions share only
// this read-only configuration.
type Orchestrator struct {
	dispatcher Dispatcher
	extractor  *ResponseExtractor
	normalizer *Normalizer
	builder    *Builder
	retry      resilience.RetryConfig
	logger     *slog.Logger
}

func NewOrchestrator(dispatcher Dispatcher, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	normalizer, err := NewNormalizer(cfg.Synonyms, cfg.Fallback, logger)
	if err != nil {
		return nil, err
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &Orchestrator{
		dispatcher: dispatcher,
		extractor:  NewResponseExtractor(cfg.KeyPaths, logger),
		normalizer: normalizer,
		builder:    NewBuilder(logger),
		retry:      retry,
		logger:     logger,
	}, nil
}

// Extract runs the full pipeline for one in-memory file. Transport-class
// failures are retried up to the configured bound; parsing and validation
// failures surface immediately, since retrying cannot fix malformed
// content. Cancellation aborts the in-flight request and the retry loop;
// partial results are never returned.
func (o *Orchestrator) Extract(ctx context.Context, fileBytes []byte, filename string) (Result, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()
	res := Result{}

	o.logger.Info("extract.start",
		"req_id", reqID,
		"filename", filename,
		"file_bytes", len(fileBytes),
		"max_attempts", o.retry.MaxAttempts,
	)

	if len(fileBytes) == 0 {
		return o.fail(res, reqID, start, common.NewExtractionError(
			common.KindValidation, common.StageDispatch, "file is empty", nil))
	}

	retry := o.retry
	innerOnRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		o.logger.Warn("extract.dispatch_retry",
			"req_id", reqID, "attempt", attempt, "error", err)
		if innerOnRetry != nil {
			innerOnRetry(attempt, err)
		}
	}

	req := DispatchRequest{FileBytes: fileBytes, Filename: filename}
	raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (RawResponse, error) {
		res.Attempts++
		o.logState(reqID, constants.JobStatusDispatching, "attempt", res.Attempts)
		resp, dispatchErr := o.dispatcher.Dispatch(ctx, req)
		if dispatchErr != nil {
			return RawResponse{}, dispatchErr
		}
		o.logState(reqID, constants.JobStatusAwaitingResponse, "response_bytes", len(resp.Body))
		return resp, nil
	})
	if err != nil {
		return o.fail(res, reqID, start, classifyDispatchError(ctx, err))
	}

	o.logState(reqID, constants.JobStatusParsing)
	content, err := o.extractor.Extract(raw)
	if err != nil {
		return o.fail(res, reqID, start, err)
	}

	records, warnings, err := o.normalizer.Normalize(content)
	if err != nil {
		return o.fail(res, reqID, start, err)
	}
	res.Warnings = warnings

	o.logState(reqID, constants.JobStatusValidating, "records", len(records))
	table, err := o.builder.Build(records)
	if err != nil {
		return o.fail(res, reqID, start, err)
	}

	res.Table = table
	res.Elapsed = time.Since(start)
	o.logger.Info("extract.ok",
		"req_id", reqID,
		"status", string(constants.JobStatusDone),
		"rows", table.RowCount,
		"attempts", res.Attempts,
		"total_interest", table.TotalInterest.String(),
		"total_insurance", table.TotalInsurance.String(),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

func (o *Orchestrator) fail(res Result, reqID string, start time.Time, err error) (Result, error) {
	res.Elapsed = time.Since(start)
	o.logger.Error("extract.failed",
		"req_id", reqID,
		"status", string(constants.JobStatusFailed),
		"kind", string(common.KindOf(err)),
		"attempts", res.Attempts,
		"error", err,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, err
}

func (o *Orchestrator) logState(reqID string, status constants.JobStatus, extra ...any) {
	args := append([]any{"req_id", reqID, "status", string(status)}, extra...)
	o.logger.Debug("extract.state", args...)
}

// classifyDispatchError folds a failed dispatch into the error taxonomy:
// cancellation, timeout (retriable, bound already spent), or transport.
// Errors already classified pass through untouched.
func classifyDispatchError(ctx context.Context, err error) error {
	var ee *common.ExtractionError
	if errors.As(err, &ee) {
		return err
	}

	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return common.NewExtractionError(
			common.KindCancelled, common.StageDispatch, "extraction cancelled by caller", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return common.NewExtractionError(
			common.KindTimeout, common.StageDispatch, "extraction request timed out", err)
	}

	return common.NewExtractionError(
		common.KindTransport, common.StageDispatch, "extraction request failed", err)
}
