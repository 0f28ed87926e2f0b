package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"pdfrag/src/core/rag"
)

// JobsTopic is the queue job messages are published to.
const JobsTopic = "jobs"

type JobService struct {
	publisher  message.Publisher
	repo       JobRepository
	logger     watermill.LoggerAdapter
	ingestTask *IngestTask

	// processed holds jobs whose task finished but whose completion was not
	// recorded yet, so a redelivery only retries the status write.
	mu        sync.Mutex
	processed map[int]struct{}
}

type JobMessage struct {
	JobID    int             `json:"job_id"`
	TaskType string          `json:"task_type"`
	Payload  json.RawMessage `json:"payload"`
}

func NewJobService(
	publisher message.Publisher,
	repo JobRepository,
	logger watermill.LoggerAdapter,
	ingestTask *IngestTask,
) *JobService {
	return &JobService{
		publisher:  publisher,
		repo:       repo,
		logger:     logger,
		ingestTask: ingestTask,
		processed:  make(map[int]struct{}),
	}
}

// EnqueueJob creates a new job and publishes it to the message queue
func (s *JobService) EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*Job, error) {
	job, err := s.repo.Create(ctx, taskType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msgPayload, err := json.Marshal(JobMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		Payload:  job.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(JobsTopic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	s.logger.Info("job enqueued", watermill.LogFields{
		"job_id":    job.ID,
		"task_type": taskType,
	})
	return job, nil
}

// EnqueueIngest schedules ingestion of an already archived upload.
func (s *JobService) EnqueueIngest(ctx context.Context, payload IngestPayload) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingest payload: %w", err)
	}
	return s.EnqueueJob(ctx, TaskTypeIngest, raw)
}

// ProcessJobMessage processes a job message from the queue. Failures that a
// retry cannot fix mark the job failed and ack the message; other failures
// are returned so the router retries them.
func (s *JobService) ProcessJobMessage(msg *message.Message) error {
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Payload, &jobMsg); err != nil {
		s.logger.Error("dropping malformed job message", err, watermill.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	ctx := msg.Context()

	job, err := s.repo.Get(ctx, jobMsg.JobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		s.logger.Error("dropping message for unknown job", ErrJobNotFound, watermill.LogFields{"job_id": jobMsg.JobID})
		return nil
	}

	if job.Status == JobStatusCompleted {
		s.logger.Info("skipping completed job", watermill.LogFields{"job_id": job.ID})
		return nil
	}

	if !s.isProcessed(job.ID) {
		if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
			return fmt.Errorf("failed to update job status to running: %w", err)
		}

		if err := s.processJob(ctx, job); err != nil {
			errStr := err.Error()
			if updateErr := s.repo.UpdateStatus(ctx, job.ID, JobStatusFailed, &errStr); updateErr != nil {
				s.logger.Error("Failed to update job status to failed", updateErr, watermill.LogFields{
					"job_id": job.ID,
				})
			}
			if isPermanent(err) {
				s.logger.Error("job failed permanently", err, watermill.LogFields{"job_id": job.ID})
				return nil
			}
			return fmt.Errorf("failed to process job: %w", err)
		}
		s.setProcessed(job.ID, true)
	}

	if err := s.repo.UpdateStatus(ctx, job.ID, JobStatusCompleted, nil); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}
	s.setProcessed(job.ID, false)
	return nil
}

func (s *JobService) isProcessed(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok
}

func (s *JobService) setProcessed(id int, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if done {
		s.processed[id] = struct{}{}
	} else {
		delete(s.processed, id)
	}
}

// ErrUnknownTaskType is returned for a job whose task type has no handler.
var ErrUnknownTaskType = errors.New("unknown task type")

func (s *JobService) processJob(ctx context.Context, job *Job) error {
	switch job.TaskType {
	case TaskTypeIngest:
		if s.ingestTask == nil {
			return fmt.Errorf("%w: %s (no ingest task configured)", ErrUnknownTaskType, job.TaskType)
		}
		return s.ingestTask.HandleIngestTask(ctx, job.Payload)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTaskType, job.TaskType)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, rag.ErrValidation) ||
		errors.Is(err, rag.ErrDuplicateDocument) ||
		errors.Is(err, rag.ErrDimensionMismatch) ||
		errors.Is(err, ErrUnknownTaskType)
}
