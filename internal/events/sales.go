// Package events публикует события о проведённых продажах.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mmeshcher/inflight-sales/internal/checkout"
	"github.com/mmeshcher/inflight-sales/internal/model"
)

// TopicSales задаёт топик событий о продажах.
const TopicSales = "inflight.sales.completed"

// SaleLine описывает проданную позицию.
type SaleLine struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Total     string `json:"total"`
}

// Sale описывает проведённую продажу.
type Sale struct {
	ID           string     `json:"id"`
	Seat         string     `json:"seat"`
	Method       string     `json:"method"`
	Currency     string     `json:"currency"`
	CustomerType string     `json:"customerType"`
	Total        string     `json:"total"`
	Received     string     `json:"received"`
	Change       string     `json:"change"`
	Lines        []SaleLine `json:"lines"`
	StockErrors  int        `json:"stockErrors"`
	CompletedAt  time.Time  `json:"completedAt"`
}

// NewSale собирает событие продажи из результата оплаты.
func NewSale(seat string, currency model.Currency, customer model.CustomerType, res *checkout.Result, at time.Time) Sale {
	s := Sale{
		ID:           uuid.NewString(),
		Seat:         seat,
		Method:       string(res.Method),
		Currency:     string(currency),
		CustomerType: string(customer),
		Total:        res.Total.StringFixed(2),
		Received:     res.Received.StringFixed(2),
		Change:       res.Change.StringFixed(2),
		Lines:        make([]SaleLine, 0, len(res.Lines)),
		StockErrors:  len(res.Failed),
		CompletedAt:  at.UTC(),
	}
	for _, l := range res.Lines {
		s.Lines = append(s.Lines, SaleLine{
			ProductID: int(l.ProductID),
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Total:     l.Total().StringFixed(2),
		})
	}
	return s
}

// Publisher публикует события о продажах.
type Publisher interface {
	PublishSale(ctx context.Context, s Sale) error
	Close() error
}

// KafkaPublisher публикует события о продажах в Kafka.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher создаёт издателя событий для указанных брокеров.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicSales,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// PublishSale синхронно отправляет событие о продаже.
func (p *KafkaPublisher) PublishSale(ctx context.Context, s Sale) error {
	msg, err := message(s)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write sale event: %w", err)
	}
	return nil
}

// Close закрывает соединения с брокерами.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func message(s Sale) (kafka.Message, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal sale: %w", err)
	}
	return kafka.Message{
		Key:   []byte(s.ID),
		Value: value,
		Time:  s.CompletedAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("sale.completed")},
		},
	}, nil
}

// NopPublisher отбрасывает события. Используется, когда брокеры не настроены.
type NopPublisher struct{}

// PublishSale ничего не делает.
func (NopPublisher) PublishSale(context.Context, Sale) error { return nil }

// Close ничего не делает.
func (NopPublisher) Close() error { return nil }
