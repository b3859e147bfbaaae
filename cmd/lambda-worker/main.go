package main

// Build the Lambda handler binary for the results queue event source:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker
//
// The event source mapping must enable ReportBatchItemFailures.

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"statements-backend/internal/bootstrap"
	"statements-backend/internal/shared/config"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/storage/db"
	"statements-backend/internal/shared/telemetry"
	"statements-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	applier  workerproc.ResultApplier
)

func initApp() {
	cfg := config.Load()
	if err := telemetry.Init(cfg.LogLevel, cfg.LogFormat, ""); err != nil {
		initErr = err
		return
	}
	app, err := bootstrap.Build(context.Background(), cfg, db.DefaultWorkerOptions())
	if err != nil {
		initErr = err
		return
	}
	applier = app.Queue
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"error": initErr})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processBatch(ctx, applier, event), nil
}

// processBatch reports only retryable failures back to SQS; everything else
// is consumed.
func processBatch(ctx context.Context, applier workerproc.ResultApplier, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		res, err := workerproc.HandleMessage(ctx, applier, record.Body)
		if err == nil {
			metrics.WorkerMessagesTotal.WithLabelValues("applied").Inc()
			continue
		}

		fields := map[string]any{
			"sqs_message_id": record.MessageId,
			"document_id":    res.DocumentID,
			"error":          err.Error(),
		}
		if res.RequestID != "" {
			fields["request_id"] = res.RequestID
		}
		if workerproc.Retryable(err) {
			telemetry.Error("lambda_worker.result.failed", fields)
			metrics.WorkerMessagesTotal.WithLabelValues("retry").Inc()
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		telemetry.Warn("lambda_worker.result.dropped", fields)
		metrics.WorkerMessagesTotal.WithLabelValues("rejected").Inc()
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
