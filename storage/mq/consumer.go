package mq

import (
	"context"
	stderrors "errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"fitcoach/config"
	"fitcoach/pkg/errors"
	"fitcoach/pkg/logger"
	mqotel "fitcoach/pkg/mq"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Ack 处理结果对应的确认方式
type Ack int

const (
	AckOK Ack = iota
	AckRequeue
	AckDrop
)

// Decide 跳过的消息直接 ack；首次失败重新入队，重投后仍失败则丢弃（交给死信）
func Decide(err error, redelivered bool) Ack {
	var skip *errors.SkipMessageError
	switch {
	case err == nil, stderrors.As(err, &skip):
		return AckOK
	case redelivered:
		return AckDrop
	default:
		return AckRequeue
	}
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭
func Consume(ctx context.Context, opts ConsumeOptions) error {
	conn := Connection()
	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log := logger.Component("mq").With(
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
	)
	log.Info("Started consuming messages", zap.Int("prefetch_count", opts.PrefetchCount))

	for {
		select {
		case <-ctx.Done():
			log.Info("Consumer stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel for %s closed", opts.Queue)
			}
			handle(ctx, log, opts, msg)
		}
	}
}

func handle(ctx context.Context, log *zap.Logger, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, span := mqotel.StartConsumeSpan(ctx, config.Cfg.ServiceName, opts.Queue, msg)
	err := opts.Handler(msgCtx, msg.Body)
	mqotel.EndSpan(span, err)

	var ackErr error
	switch Decide(err, msg.Redelivered) {
	case AckOK:
		ackErr = msg.Ack(false)
	case AckRequeue:
		log.Error("Failed to process message, requeueing",
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		ackErr = msg.Nack(false, true)
	case AckDrop:
		log.Error("Failed to process redelivered message, dropping",
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		ackErr = msg.Nack(false, false)
	}
	if ackErr != nil {
		log.Warn("Failed to acknowledge message", zap.String("message_id", msg.MessageId), zap.Error(ackErr))
	}
}
