package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task types handled by the notification worker.
const (
	TypeSessionRequest  = "notification:session_request"
	TypeSessionResponse = "notification:session_response"
)

// SessionRequestPayload tells a trainer that a client asked for a slot.
type SessionRequestPayload struct {
	TrainerID string `json:"trainerId"`
	UserID    string `json:"userId"`
}

// SessionResponsePayload tells a client how the trainer decided.
type SessionResponsePayload struct {
	UserID      string `json:"userId"`
	TrainerName string `json:"trainerName"`
	Approved    bool   `json:"approved"`
	Reason      string `json:"reason,omitempty"`
}

// Enqueuer is the part of *asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier implements the booking Notifier port by enqueueing asynq tasks;
// delivery happens later in the Worker.
type TaskNotifier struct {
	client   Enqueuer
	queue    string
	maxRetry int
}

func NewTaskNotifier(client Enqueuer, queue string, maxRetry int) *TaskNotifier {
	if queue == "" {
		queue = "notifications"
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &TaskNotifier{client: client, queue: queue, maxRetry: maxRetry}
}

func NewSessionRequestTask(trainerID, userID primitive.ObjectID) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionRequestPayload{TrainerID: trainerID.Hex(), UserID: userID.Hex()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSessionRequest, payload), nil
}

func NewSessionResponseTask(userID primitive.ObjectID, trainerName string, approved bool, reason string) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionResponsePayload{
		UserID:      userID.Hex(),
		TrainerName: trainerName,
		Approved:    approved,
		Reason:      reason,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSessionResponse, payload), nil
}

func (n *TaskNotifier) SendSessionRequestNotification(ctx context.Context, trainerID, userID primitive.ObjectID) error {
	task, err := NewSessionRequestTask(trainerID, userID)
	if err != nil {
		return err
	}
	return n.enqueue(ctx, task)
}

func (n *TaskNotifier) SendSessionResponseNotification(ctx context.Context, userID primitive.ObjectID, trainerName string, approved bool, reason string) error {
	task, err := NewSessionResponseTask(userID, trainerName, approved, reason)
	if err != nil {
		return err
	}
	return n.enqueue(ctx, task)
}

func (n *TaskNotifier) enqueue(ctx context.Context, task *asynq.Task) error {
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(n.queue), asynq.MaxRetry(n.maxRetry)); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}
