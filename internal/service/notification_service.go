package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/Y04ash/Projexx/internal/dto"
	"github.com/Y04ash/Projexx/internal/models"
	"github.com/Y04ash/Projexx/internal/observability"
	"github.com/Y04ash/Projexx/internal/repository"
)

const notificationBufferSize = 16

// TaskSubmissionEvent informs the owning faculty about a new submission.
type TaskSubmissionEvent struct {
	FacultyID    string
	StudentID    string
	StudentName  string
	TaskID       string
	TaskTitle    string
	SubmissionID string
}

// TaskStatusUpdateEvent informs the student about grading or any other
// reviewer-driven status change.
type TaskStatusUpdateEvent struct {
	StudentID    string
	TaskID       string
	TaskTitle    string
	SubmissionID string
	Status       string
	Feedback     string
	FacultyName  string
	Grade        *float64
	MaxPoints    float64
}

// Dispatcher is the side channel the submission and grading workflows use
// after a state change has been durably committed. Implementations never
// propagate their own failures back to the caller.
type Dispatcher interface {
	NotifyTaskSubmission(ctx context.Context, event TaskSubmissionEvent)
	NotifyTaskStatusUpdate(ctx context.Context, event TaskStatusUpdateEvent)
}

// NopDispatcher discards events. Used where no notification channel is
// configured and in tests.
type NopDispatcher struct{}

// NotifyTaskSubmission implements Dispatcher.
func (NopDispatcher) NotifyTaskSubmission(context.Context, TaskSubmissionEvent) {}

// NotifyTaskStatusUpdate implements Dispatcher.
func (NopDispatcher) NotifyTaskStatusUpdate(context.Context, TaskStatusUpdateEvent) {}

// NotificationService persists notifications and streams them to connected
// recipients. Live delivery is best-effort; the durable record always wins.
type NotificationService interface {
	Dispatcher
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, recipientID string, limit, offset int) ([]dto.NotificationResponse, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Subscribe(recipientID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	broker      *notificationBroker
	nodeID      string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs a notification service. Both
// redisClient and natsConn may be nil; the durable record and the
// in-process broker work without either.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:        repo,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/Y04ash/Projexx/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
		broker: &notificationBroker{
			subscribers: make(map[string]map[chan dto.NotificationResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

// Start launches the cross-node consumers for whichever brokers are
// configured.
func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// NotifyTaskSubmission records and fans out the faculty-facing notification
// for a new submission. Failures are logged and swallowed.
func (s *notificationService) NotifyTaskSubmission(ctx context.Context, event TaskSubmissionEvent) {
	_, err := s.Publish(ctx, dto.NotificationCreateRequest{
		RecipientID:   event.FacultyID,
		RecipientRole: models.RoleFaculty,
		Type:          models.NotificationTypeTaskSubmission,
		Title:         "New Task Submission",
		Message:       fmt.Sprintf("%s has submitted task: %s", event.StudentName, event.TaskTitle),
		Data: map[string]any{
			"submission_id": event.SubmissionID,
			"task_id":       event.TaskID,
			"student_id":    event.StudentID,
			"student_name":  event.StudentName,
			"task_title":    event.TaskTitle,
			"action":        "view_submission",
		},
		Priority: models.NotificationPriorityMedium,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("faculty_id", event.FacultyID).Msg("failed to dispatch task submission notification")
	}
}

// NotifyTaskStatusUpdate records and fans out the student-facing
// notification for grading and manual status changes. Failures are logged
// and swallowed.
func (s *notificationService) NotifyTaskStatusUpdate(ctx context.Context, event TaskStatusUpdateEvent) {
	message := statusMessage(event)
	data := map[string]any{
		"submission_id": event.SubmissionID,
		"task_id":       event.TaskID,
		"task_title":    event.TaskTitle,
		"status":        event.Status,
		"feedback":      event.Feedback,
		"faculty_name":  event.FacultyName,
		"action":        "view_task",
	}
	if event.Grade != nil {
		data["grade"] = *event.Grade
		data["max_points"] = event.MaxPoints
	}

	_, err := s.Publish(ctx, dto.NotificationCreateRequest{
		RecipientID:   event.StudentID,
		RecipientRole: models.RoleStudent,
		Type:          models.NotificationTypeTaskStatusUpdate,
		Title:         "Task Status Update",
		Message:       message,
		Data:          data,
		Priority:      models.NotificationPriorityHigh,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("student_id", event.StudentID).Msg("failed to dispatch task status notification")
	}
}

func statusMessage(event TaskStatusUpdateEvent) string {
	if event.Grade != nil {
		return fmt.Sprintf("Your submission for %q has been graded. You received %g/%g points.", event.TaskTitle, *event.Grade, event.MaxPoints)
	}

	switch event.Status {
	case models.SubmissionStatusReturned:
		return fmt.Sprintf("Your submission for %q has been returned.", event.TaskTitle)
	case models.SubmissionStatusResubmissionRequired:
		return fmt.Sprintf("Your submission for %q needs revision.", event.TaskTitle)
	case models.SubmissionStatusUnderReview:
		return fmt.Sprintf("Your submission for %q is under review.", event.TaskTitle)
	default:
		return fmt.Sprintf("Your task status has been updated: %s", event.TaskTitle)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, errors.New("notification message empty after sanitization")
	}

	priority := payload.Priority
	if priority == "" {
		priority = models.NotificationPriorityMedium
	}

	attrs := []attribute.KeyValue{
		attribute.String("notification.recipient_id", payload.RecipientID),
		attribute.String("notification.type", payload.Type),
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.Notification{
		RecipientID:   payload.RecipientID,
		RecipientRole: payload.RecipientRole,
		Type:          payload.Type,
		Title:         payload.Title,
		Message:       cleanMessage,
		Data:          datatypes.JSONMap(payload.Data),
		Priority:      priority,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.broker.broadcast(response.RecipientID, response)
	if err := s.fanOut(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification to broker")
	}

	observability.NotificationsPublished().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, recipientID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, errors.New("recipient id is required")
	}

	notifications, err := s.repo.ListByRecipient(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if strings.TrimSpace(recipientID) == "" {
		return 0, errors.New("recipient id is required")
	}

	return s.repo.CountUnread(ctx, recipientID)
}

func (s *notificationService) MarkRead(ctx context.Context, id, recipientID string) (dto.NotificationResponse, error) {
	notification, err := s.repo.MarkRead(ctx, id, recipientID)
	if err != nil {
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipientID)
}

// Subscribe attaches a live listener for the recipient. The returned
// cleanup must be called when the client disconnects.
func (s *notificationService) Subscribe(recipientID string) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(recipientID, channel)
	observability.StreamClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(recipientID, channel)
		observability.StreamClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *notificationService) fanOut(ctx context.Context, notification dto.NotificationResponse) error {
	if s.redis == nil && s.nats == nil {
		return nil
	}

	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "projexx-notifications", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.broker.broadcast(event.Notification.RecipientID, event.Notification)
}

func (b *notificationBroker) subscribe(recipientID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[recipientID]; !exists {
		b.subscribers[recipientID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[recipientID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(recipientID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[recipientID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, recipientID)
		}
	}
}

func (b *notificationBroker) broadcast(recipientID string, notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[recipientID]
	for ch := range subscribers {
		select {
		case ch <- notification:
		default:
		}
	}
}
