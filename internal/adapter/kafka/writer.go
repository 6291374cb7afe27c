// Package kafka publishes geocoded address records to a Kafka topic, for
// deployments that fan results out to downstream consumers instead of (or in
// addition to) writing a file.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/LunaInsidious/abr-geocoder/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Writer produces geocoded records to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the given brokers and topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch serializes and publishes multiple geocoded records in a single
// WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, records []domain.Query) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// message is the wire shape of one geocoded record.
type message struct {
	Input      string   `json:"input"`
	MatchLevel string   `json:"match_level"`
	MatchedCnt int      `json:"matched_cnt"`
	LgCode     string   `json:"lg_code"`
	Pref       string   `json:"pref"`
	County     string   `json:"county"`
	City       string   `json:"city"`
	Ward       string   `json:"ward"`
	Machiaza   string   `json:"machiaza"`
	MachiazaID string   `json:"machiaza_id"`
	Other      string   `json:"other"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
}

// serializeToMessage marshals a geocoded record into a Kafka message. The key
// is derived from the resolved identifiers, so records resolving to the same
// address land in the same partition.
func serializeToMessage(q domain.Query) (kafkago.Message, error) {
	m := message{
		Input:      q.Input,
		MatchLevel: q.MatchLevel.String(),
		MatchedCnt: q.MatchedCnt,
		LgCode:     q.LgCode,
		Pref:       q.Pref,
		County:     q.County,
		City:       q.City,
		Ward:       q.Ward,
		Machiaza:   q.OazaCho + q.Chome + q.Koaza,
		MachiazaID: q.MachiazaID,
		Other:      q.Other(),
		Lat:        q.Lat,
		Lon:        q.Lon,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize geocoded record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(domain.DeriveKey(q.LgCode, q.MachiazaID, q.BlockID, q.RsdtID, q.Rsdt2ID, q.RsdtAddrFlg)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "match_level", Value: []byte(q.MatchLevel.String())},
			{Key: "processed_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
