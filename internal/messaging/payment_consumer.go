package messaging

import (
	"context"
	"time"
	"ztuff-backend/internal/common"
	"ztuff-backend/internal/gateway"
	"ztuff-backend/internal/model"
	svcerrors "ztuff-backend/internal/service/errors"
	"ztuff-backend/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SourceKafka 支付通知来源标签
const SourceKafka = "kafka"

// MessageReader kafka.Reader 中消费者用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentHandler 订单服务中处理支付通知的部分
type PaymentHandler interface {
	HandlePaymentNotification(ctx context.Context, source string, n model.PaymentNotification) (*model.Order, string, error)
}

// PaymentConsumer 从 Kafka 消费支付通知，处理完成后才提交 offset
type PaymentConsumer struct {
	reader     MessageReader
	handler    PaymentHandler
	serverKey  string
	maxRetries int
	backoff    time.Duration
}

func NewPaymentConsumer(brokers []string, topic, groupID, serverKey string, handler PaymentHandler) *PaymentConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return newPaymentConsumer(reader, handler, serverKey)
}

func newPaymentConsumer(reader MessageReader, handler PaymentHandler, serverKey string) *PaymentConsumer {
	return &PaymentConsumer{
		reader:     reader,
		handler:    handler,
		serverKey:  serverKey,
		maxRetries: 3,
		backoff:    5 * time.Second,
	}
}

// Run 阻塞直到 ctx 取消
func (c *PaymentConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	util.Logger.Info("支付通知消费者已启动")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				util.Logger.Info("支付通知消费者已停止")
				return nil
			}
			return err
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			util.Logger.Error("提交 offset 失败", zap.Int64("offset", msg.Offset), zap.Error(err))
			return err
		}
	}
}

// process 只有在 ctx 取消时返回错误；无法处理的消息记录日志后跳过
func (c *PaymentConsumer) process(ctx context.Context, msg kafka.Message) error {
	fields := []zap.Field{
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	n, err := gateway.DecodeNotification(msg.Value)
	if err != nil {
		util.Logger.Error("无法解析支付通知，跳过", append(fields, zap.Error(err))...)
		return nil
	}
	if c.serverKey != "" && !n.VerifySignature(c.serverKey) {
		util.Logger.Error("支付通知签名无效，跳过", append(fields, zap.String("order_id", n.OrderID))...)
		return nil
	}
	notification := n.Normalize()

	for {
		err = common.WithRetry(ctx, func() error {
			_, _, err := c.handler.HandlePaymentNotification(ctx, SourceKafka, notification)
			return err
		}, c.maxRetries)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if permanent(err) {
			util.Logger.Error("支付通知处理失败，跳过",
				append(fields, zap.String("order_id", n.OrderID), zap.Error(err))...)
			return nil
		}
		util.Logger.Warn("支付通知暂时无法处理，稍后重试",
			append(fields, zap.String("order_id", n.OrderID), zap.Error(err))...)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}

// permanent 重放也无法成功的错误，数据库和内部错误不算在内
func permanent(err error) bool {
	if common.IsRetryable(err) {
		return false
	}
	switch svcerrors.GetErrorCode(err) {
	case svcerrors.ErrInvalidInput, svcerrors.ErrNotFound, svcerrors.ErrDuplicate,
		svcerrors.ErrUnauthorized, svcerrors.ErrForbidden, svcerrors.ErrConflict:
		return true
	}
	return false
}
