package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"fitcoach/config"
	"fitcoach/pkg/logger"
)

// 事件交换机与队列
const (
	EventsExchange = "fitcoach.events"

	OnboardingCompletedKey   = "onboarding.completed"
	OnboardingCompletedQueue = "onboarding.completed"
)

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

// Init 建立连接并声明拓扑
func Init() error {
	connOnce.Do(func() {
		conn, connErr = amqp.Dial(config.Cfg.GetRabbitMQURL())
		if connErr != nil {
			return
		}
		if connErr = declareTopology(); connErr != nil {
			return
		}
		logger.Logger.Info("RabbitMQ initialized successfully",
			zap.String("exchange", EventsExchange),
		)
	})
	return connErr
}

func Connection() *amqp.Connection {
	return conn
}

func declareTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open topology channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", EventsExchange, err)
	}
	if _, err := ch.QueueDeclare(OnboardingCompletedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", OnboardingCompletedQueue, err)
	}
	if err := ch.QueueBind(OnboardingCompletedQueue, OnboardingCompletedKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", OnboardingCompletedQueue, err)
	}
	return nil
}

func Close(ctx context.Context) error {
	if conn == nil || conn.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
