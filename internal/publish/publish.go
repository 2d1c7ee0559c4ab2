// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package publish mirrors the history of a location session to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/wneessen/fixtrail/internal/config"
	"github.com/wneessen/fixtrail/internal/history"
	"github.com/wneessen/fixtrail/internal/job"
	"github.com/wneessen/fixtrail/internal/location"
	"github.com/wneessen/fixtrail/internal/logger"
)

const (
	connectTimeout  = time.Second * 10
	publishTimeout  = time.Second * 5
	quiesceMillis   = 250
	eventBufferSize = 64
	catchUpInterval = time.Second
	initialBackoff  = time.Second
	maxBackoff      = time.Minute

	// LastKnownSuffix is appended to the topic for the retained last-known fix.
	LastKnownSuffix = "/lastknown"
)

var ErrTimeout = errors.New("timed out waiting for MQTT broker")

// Client is the subset of the paho MQTT client used by the Sink.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON payload of a published fix.
type Message struct {
	Index     int       `json:"index"`
	Provider  string    `json:"provider"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Time      time.Time `json:"time"`
}

// Sink publishes every fix appended to a History to a topic, and the last-known fix as a
// retained message to the topic with LastKnownSuffix. Only fixes appended after the broker
// connection was established are published.
type Sink struct {
	client      Client
	topic       string
	qos         byte
	history     *history.History
	logger      *logger.Logger
	eventBuffer int

	mu        sync.Mutex
	published int
}

// New returns a Sink connected through a paho client configured from conf.
func New(conf *config.Config, hist *history.History, log *logger.Logger) *Sink {
	clientID := conf.MQTT.ClientID
	if clientID == "" {
		clientID = "fixtrail-" + uuid.NewString()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.MQTT.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)

	return NewWithClient(mqtt.NewClient(opts), conf.MQTT.Topic, byte(conf.MQTT.QoS), hist, log)
}

// NewWithClient returns a Sink that publishes through client.
func NewWithClient(client Client, topic string, qos byte, hist *history.History, log *logger.Logger) *Sink {
	return &Sink{
		client:      client,
		topic:       topic,
		qos:         qos,
		history:     hist,
		logger:      log,
		eventBuffer: eventBufferSize,
	}
}

// Run connects to the broker and publishes history changes until ctx is canceled. A failed
// connection is retried with exponential backoff. Appended fixes whose change event got lost are
// published by a periodic catch-up.
func (s *Sink) Run(ctx context.Context) {
	if !s.connect(ctx) {
		return
	}
	defer s.client.Disconnect(quiesceMillis)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, unsub := s.history.Subscribe(s.eventBuffer)
	defer unsub()

	s.mu.Lock()
	s.published = s.history.Count()
	s.mu.Unlock()
	go job.New(catchUpInterval, func(context.Context) { s.catchUp() }).Start(runCtx)

	if fix, ok := s.history.LastKnown(); ok {
		s.publishLastKnown(fix)
	}
	s.logger.Debug("publishing location fixes", slog.String("topic", s.topic))

	for {
		select {
		case <-runCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case history.EventLastKnown:
				s.publishLastKnown(ev.Fix)
			case history.EventAppended:
				s.catchUp()
			}
		}
	}
}

// connect reports false if ctx was canceled before the broker accepted the connection.
func (s *Sink) connect(ctx context.Context) bool {
	backoff := initialBackoff
	for {
		err := wait(s.client.Connect(), connectTimeout)
		if err == nil {
			return true
		}
		s.logger.Error("failed to connect to MQTT broker", slog.Duration("retry_in", backoff), logger.Err(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Published returns the number of history entries handled so far.
func (s *Sink) Published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

func (s *Sink) catchUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fixes := s.history.Snapshot(s.published)
	for i, fix := range fixes {
		s.publish(s.topic, false, newMessage(s.published+i, fix))
	}
	s.published += len(fixes)
}

func (s *Sink) publishLastKnown(fix location.Fix) {
	s.publish(s.topic+LastKnownSuffix, true, newMessage(-1, fix))
}

func (s *Sink) publish(topic string, retained bool, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal fix", logger.Err(err))
		return
	}
	if err = wait(s.client.Publish(topic, s.qos, retained, payload), publishTimeout); err != nil {
		s.logger.Error("failed to publish fix", slog.String("topic", topic), logger.Err(err))
	}
}

func newMessage(index int, fix location.Fix) Message {
	return Message{
		Index:     index,
		Provider:  fix.Provider,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Time:      fix.Time,
	}
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}
