package main

import (
	"context"
	"errors"
	"sync/atomic"

	"several/internal/amqp"
	"several/internal/log"
)

// noticeSink logs every notice at a level matching its kind.
type noticeSink struct {
	logger  *log.Logger
	handled atomic.Int64
}

func newNoticeSink(logger *log.Logger) *noticeSink {
	return &noticeSink{logger: logger.WithComponent(log.ComponentNotifier)}
}

func (s *noticeSink) Handle(msg *amqp.NoticeMessage) error {
	if msg == nil {
		return errors.New("nil notice")
	}
	s.handled.Add(1)

	args := []any{log.FieldKind, msg.Kind, "sent_at", msg.Timestamp}
	if msg.BudgetID != "" {
		args = append(args, log.FieldBudgetID, msg.BudgetID)
	}
	ctx := context.Background()
	switch msg.Kind {
	case amqp.NoticeStorageError:
		s.logger.ErrorContext(ctx, msg.Message, args...)
	case amqp.NoticeImportWarning:
		s.logger.WarnContext(ctx, msg.Message, args...)
	default:
		s.logger.InfoContext(ctx, msg.Message, args...)
	}
	return nil
}

func (s *noticeSink) Handled() int64 {
	return s.handled.Load()
}
