package observability

import (
	"context"
	"fmt"

	"questionbank/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer("questionbank")
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		// Fallback to default tracer if not initialized
		globalTracer = otel.Tracer("questionbank")
	}
	return globalTracer
}

// TraceFunction starts a new span with a descriptive name for the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceFunctionWithErrorHandling starts a new span and automatically adds error attributes if the function panics or returns an error.
func TraceFunctionWithErrorHandling(ctx context.Context, serviceName, functionName string, fn func() error, attributes ...attribute.KeyValue) error {
	_, span := TraceFunction(ctx, serviceName, functionName, attributes...)
	defer func() {
		if err := recover(); err != nil {
			span.SetAttributes(
				attribute.Bool("error", true),
				attribute.String("error.type", "panic"),
				attribute.String("error.message", fmt.Sprintf("%v", err)),
			)
			span.End()
			panic(err) // re-panic
		}
	}()

	err := fn()
	if err != nil {
		span.SetAttributes(
			attribute.Bool("error", true),
			attribute.String("error.message", err.Error()),
		)
	}
	span.End()
	return err
}

// TraceUserFunction starts a new span for a user service function.
func TraceUserFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "user", functionName, attributes...)
}

// TraceQuestionFunction starts a new span for a question store function.
func TraceQuestionFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "question", functionName, attributes...)
}

// TraceModerationFunction starts a new span for a moderation service function.
func TraceModerationFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "moderation", functionName, attributes...)
}

// TraceFlagFunction starts a new span for a flag tracker function.
func TraceFlagFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "flag", functionName, attributes...)
}

// TraceQueueFunction starts a new span for a review queue function.
func TraceQueueFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "queue", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeQuestion returns a tracing attribute for a question's ID.
func AttributeQuestion(q *models.Question) attribute.KeyValue {
	return attribute.String("question.id", fmt.Sprintf("%d", q.ID))
}

// AttributeQuestionID returns a tracing attribute for a question ID.
func AttributeQuestionID(id int) attribute.KeyValue {
	return attribute.Int("question.id", id)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}

// AttributeStatus returns a tracing attribute for a question status.
func AttributeStatus(status models.QuestionStatus) attribute.KeyValue {
	return attribute.String("question.status", string(status))
}

// AttributeReviewAction returns a tracing attribute for a review action.
func AttributeReviewAction(action models.ReviewAction) attribute.KeyValue {
	return attribute.String("review.action", string(action))
}

// AttributeFlagType returns a tracing attribute for a flag type.
func AttributeFlagType(ft models.FlagType) attribute.KeyValue {
	return attribute.String("flag.type", string(ft))
}

// AttributeFlagID returns a tracing attribute for a flag ID.
func AttributeFlagID(id int) attribute.KeyValue {
	return attribute.Int("flag.id", id)
}

// AttributeRole returns a tracing attribute for an actor role.
func AttributeRole(role models.Role) attribute.KeyValue {
	return attribute.String("actor.role", string(role))
}

// AttributeLimit returns a tracing attribute for a limit value.
func AttributeLimit(limit int) attribute.KeyValue {
	return attribute.Int("limit", limit)
}

// AttributePage returns a tracing attribute for a page value.
func AttributePage(page int) attribute.KeyValue {
	return attribute.Int("page", page)
}

// AttributePageSize returns a tracing attribute for a page size value.
func AttributePageSize(size int) attribute.KeyValue {
	return attribute.Int("page_size", size)
}

// AttributeStatusFilter returns a tracing attribute for a status filter value.
func AttributeStatusFilter(statusFilter string) attribute.KeyValue {
	return attribute.String("status_filter", statusFilter)
}
