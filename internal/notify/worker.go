package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/metrics"
)

// UserLookup resolves notification recipients.
type UserLookup interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// Worker delivers queued notifications by email, plus SMS when the recipient has a phone.
type Worker struct {
	users   UserLookup
	mailer  Mailer
	texter  Texter // optional
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewWorker(users UserLookup, mailer Mailer, texter Texter, m *metrics.Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{users: users, mailer: mailer, texter: texter, metrics: m, logger: logger}
}

// Register mounts the task handlers on mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSessionRequest, w.HandleSessionRequest)
	mux.HandleFunc(TypeSessionResponse, w.HandleSessionResponse)
}

func (w *Worker) HandleSessionRequest(ctx context.Context, t *asynq.Task) error {
	var p SessionRequestPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	trainer, err := w.lookup(ctx, p.TrainerID)
	if err != nil {
		return err
	}
	client, err := w.lookup(ctx, p.UserID)
	if err != nil {
		return err
	}

	msg := requestMessage(trainer, client)
	return w.deliver(ctx, TypeSessionRequest, trainer, msg)
}

func (w *Worker) HandleSessionResponse(ctx context.Context, t *asynq.Task) error {
	var p SessionResponsePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	client, err := w.lookup(ctx, p.UserID)
	if err != nil {
		return err
	}

	msg := responseMessage(client, p)
	return w.deliver(ctx, TypeSessionResponse, client, msg)
}

func (w *Worker) lookup(ctx context.Context, hex string) (*domain.User, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", hex, asynq.SkipRetry)
	}
	user, err := w.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", hex, err)
	}
	return user, nil
}

// deliver sends the email and then, best effort, the SMS. Only an email failure is
// returned, so a retry never re-sends an email that already went out because of SMS.
func (w *Worker) deliver(ctx context.Context, kind string, to *domain.User, msg message) error {
	if to.Email == "" {
		w.logger.Warn("recipient has no email address", zap.String("type", kind), zap.String("user_id", to.ID.Hex()))
	} else if err := w.mailer.Send(ctx, Email{
		ToAddress: to.Email,
		ToName:    to.Name,
		Subject:   msg.subject,
		PlainText: msg.text,
		HTML:      msg.html,
	}); err != nil {
		w.metrics.NotificationFailed(kind)
		return err
	}

	if w.texter != nil && to.Phone != "" {
		if err := w.texter.Send(ctx, to.Phone, msg.sms); err != nil {
			w.metrics.NotificationFailed(kind + ":sms")
			w.logger.Warn("sms delivery failed", zap.String("type", kind), zap.String("user_id", to.ID.Hex()), zap.Error(err))
		}
	}

	w.logger.Info("notification delivered", zap.String("type", kind), zap.String("user_id", to.ID.Hex()))
	return nil
}
