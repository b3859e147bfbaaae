package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"statements-backend/internal/bootstrap"
	"statements-backend/internal/queue"
	"statements-backend/internal/shared/config"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/storage/db"
	"statements-backend/internal/shared/telemetry"
	"statements-backend/internal/workerproc"
)

const (
	outcomeApplied       = "applied"
	outcomeRejected      = "rejected"
	outcomeUnrecoverable = "unrecoverable"
	outcomeRetry         = "retry"
)

func main() {
	cfg := config.Load()
	if err := telemetry.Init(cfg.LogLevel, cfg.LogFormat, ""); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer telemetry.Sync()

	queueURL := cfg.SQSResultsQueueURL
	if queueURL == "" {
		log.Fatal("SQS_RESULTS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqsClient, err := queue.NewSQSAPI(ctx, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	app, err := bootstrap.Build(ctx, cfg, db.DefaultWorkerOptions())
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	p := &poller{
		client:     sqsClient,
		queueURL:   queueURL,
		applier:    app.Queue,
		visibility: cfg.WorkerVisibilityTimeout,
	}

	telemetry.Info("worker.started", map[string]any{
		"queue_url":   queueURL,
		"concurrency": cfg.WorkerConcurrency,
		"visibility":  cfg.WorkerVisibilityTimeout.String(),
	})
	p.run(ctx, cfg.WorkerConcurrency, cfg.ShutdownTimeout)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type poller struct {
	client     sqsAPI
	queueURL   string
	applier    workerproc.ResultApplier
	visibility time.Duration
}

// run long-polls until ctx is done, handling at most concurrency messages at a
// time, then waits up to shutdownTimeout for in-flight messages.
func (p *poller) run(ctx context.Context, concurrency int, shutdownTimeout time.Duration) {
	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(p.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(p.visibility / time.Second),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// In-flight results finish even after shutdown starts.
				p.handleMessage(context.WithoutCancel(ctx), m)
			}(msg)
		}
	}

	telemetry.Info("worker.shutdown", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
}

// handleMessage applies one result. Malformed bodies and results the queue
// rejects are deleted; anything else stays for redelivery.
func (p *poller) handleMessage(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	res, err := workerproc.HandleMessage(ctx, p.applier, body)
	if err == nil {
		if p.deleteMessage(ctx, msg, res.DocumentID, res.RequestID) {
			fields := baseFields(msg, res.DocumentID, res.RequestID)
			fields["status"] = res.Status
			telemetry.Info("worker.result.applied", fields)
		}
		metrics.WorkerMessagesTotal.WithLabelValues(outcomeApplied).Inc()
		return
	}

	var (
		emptyErr     workerproc.ErrEmptyBody
		decodeErr    workerproc.ErrDecode
		missingIDErr workerproc.ErrMissingDocumentID
		rejectedErr  workerproc.ErrRejected
		processErr   workerproc.ErrProcess
	)
	switch {
	case errors.As(err, &emptyErr):
		fields := baseFields(msg, "", "")
		fields["body_len"] = 0
		telemetry.Error("worker.result.empty_body", fields)
		p.drop(ctx, msg, "", "", outcomeUnrecoverable)
	case errors.As(err, &decodeErr):
		fields := baseFields(msg, "", "")
		fields["body_len"] = decodeErr.Meta.BodyLen
		fields["body_sha256"] = decodeErr.Meta.BodySHA
		fields["error"] = err.Error()
		telemetry.Error("worker.result.decode_failed", fields)
		p.drop(ctx, msg, "", "", outcomeUnrecoverable)
	case errors.As(err, &missingIDErr):
		fields := baseFields(msg, "", missingIDErr.RequestID)
		fields["body_len"] = missingIDErr.Meta.BodyLen
		fields["body_sha256"] = missingIDErr.Meta.BodySHA
		telemetry.Error("worker.result.missing_document_id", fields)
		p.drop(ctx, msg, "", missingIDErr.RequestID, outcomeUnrecoverable)
	case errors.As(err, &rejectedErr):
		fields := baseFields(msg, rejectedErr.DocumentID, rejectedErr.RequestID)
		fields["error"] = rejectedErr.Err.Error()
		telemetry.Warn("worker.result.rejected", fields)
		p.drop(ctx, msg, rejectedErr.DocumentID, rejectedErr.RequestID, outcomeRejected)
	case errors.As(err, &processErr):
		fields := baseFields(msg, processErr.DocumentID, processErr.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.result.failed", fields)
		metrics.WorkerMessagesTotal.WithLabelValues(outcomeRetry).Inc()
	default:
		fields := baseFields(msg, res.DocumentID, res.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.result.failed", fields)
		metrics.WorkerMessagesTotal.WithLabelValues(outcomeRetry).Inc()
	}
}

func (p *poller) drop(ctx context.Context, msg sqstypes.Message, documentID, requestID, outcome string) {
	p.deleteMessage(ctx, msg, documentID, requestID)
	metrics.WorkerMessagesTotal.WithLabelValues(outcome).Inc()
}

func (p *poller) deleteMessage(ctx context.Context, msg sqstypes.Message, documentID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, documentID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.result.delete_failed", fields)
		return false
	}
	if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, documentID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.result.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, documentID, requestID string) map[string]any {
	fields := map[string]any{
		"document_id":    documentID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
