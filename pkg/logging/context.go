package logging

import (
	"context"
)

const (
	TopicKey       = "topic"
	TollboothIDKey = "tollbooth_id"
	ServiceNameKey = "service_name"
)

func WithTopic(ctx context.Context, topic string) context.Context {
	return context.WithValue(ctx, TopicKey, topic)
}

func WithTollboothID(ctx context.Context, tollboothID string) context.Context {
	return context.WithValue(ctx, TollboothIDKey, tollboothID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetTopic(ctx context.Context) string {
	if topic, ok := ctx.Value(TopicKey).(string); ok {
		return topic
	}
	return ""
}

func GetTollboothID(ctx context.Context) string {
	if tollboothID, ok := ctx.Value(TollboothIDKey).(string); ok {
		return tollboothID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if topic := GetTopic(ctx); topic != "" {
		fields = append(fields, "topic", topic)
	}

	if tollboothID := GetTollboothID(ctx); tollboothID != "" {
		fields = append(fields, "tollbooth_id", tollboothID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
