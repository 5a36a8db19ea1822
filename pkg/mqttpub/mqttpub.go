// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttpub publishes panel state as retained MQTT topics and turns
// "<prefix>/<name>/set" messages into operations.
package mqttpub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/aquastat/pkg/devices"
	"github.com/Thermoquad/aquastat/pkg/errcode"
	"github.com/Thermoquad/aquastat/pkg/navigator"
	"github.com/Thermoquad/aquastat/pkg/state"
)

// PUBLISH_TIMEOUT bounds each publish
const PUBLISH_TIMEOUT = 5 * time.Second

// REQUEST_TIMEOUT bounds how long a received request is followed
const REQUEST_TIMEOUT = 5 * time.Minute

// Broker is the part of an MQTT client the publisher uses
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Submitter starts operations
type Submitter interface {
	Submit(req navigator.Request) *navigator.Task
}

// Publisher mirrors state to a broker
type Publisher struct {
	broker Broker
	st     *state.State
	ops    Submitter
	prefix string

	mu   sync.Mutex
	last map[string]string

	log logrus.FieldLogger
}

// New creates a publisher. ops may be nil to publish without accepting
// requests.
func New(broker Broker, st *state.State, ops Submitter, prefix string, log logrus.FieldLogger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{
		broker: broker,
		st:     st,
		ops:    ops,
		prefix: strings.Trim(prefix, "/"),
		last:   make(map[string]string),
		log:    log.WithField("component", "mqtt"),
	}
}

// Dial connects to a broker. The client reconnects on its own and calls
// onConnect after every connection, which is where subscriptions belong.
func Dial(broker, clientID, username, password string, onConnect func(), log logrus.FieldLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.WithField("broker", broker).Info("Connected to MQTT broker")
		if onConnect != nil {
			onConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(PUBLISH_TIMEOUT) && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// Subscribe listens for set requests. Call it from the connect handler so
// subscriptions survive reconnects.
func (p *Publisher) Subscribe() error {
	if p.ops == nil {
		return nil
	}
	topic := p.prefix + "/+/set"
	token := p.broker.Subscribe(topic, 1, p.handle)
	if !token.WaitTimeout(PUBLISH_TIMEOUT) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Resync forgets what was published so the next Publish sends everything
func (p *Publisher) Resync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.last)
}

// Run publishes on every state change until ctx ends
func (p *Publisher) Run(ctx context.Context) error {
	changes, cancel := p.st.Subscribe()
	defer cancel()

	p.Publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
			p.Publish()
		}
	}
}

// Publish sends every topic whose value changed and returns how many were
// sent
func (p *Publisher) Publish() int {
	values := Topics(p.st.Snapshot())

	p.mu.Lock()
	defer p.mu.Unlock()

	sent := 0
	for name, value := range values {
		if prev, ok := p.last[name]; ok && prev == value {
			continue
		}
		topic := p.prefix + "/" + name
		token := p.broker.Publish(topic, 0, true, value)
		if !token.WaitTimeout(PUBLISH_TIMEOUT) || token.Error() != nil {
			p.log.WithError(token.Error()).WithField("topic", topic).Warn("Publish failed")
			continue
		}
		p.last[name] = value
		sent++
	}
	return sent
}

// Topics renders state as topic suffix to payload. Unknown temperatures
// and setpoints are left out.
func Topics(d state.Data) map[string]string {
	out := make(map[string]string)
	for _, dev := range d.Devices {
		out[dev.Name] = LEDPayload(dev.LED)
	}

	ints := map[string]int{
		"pool_setpoint":   d.PoolSetpoint,
		"spa_setpoint":    d.SpaSetpoint,
		"freeze_setpoint": d.FreezeSetpoint,
		"swg_percent":     d.SWGPercent,
		"swg_ppm":         d.SWGPPM,
		"air_temp":        d.AirTemp,
		"pool_temp":       d.PoolTemp,
		"spa_temp":        d.SpaTemp,
	}
	for name, v := range ints {
		if v != state.TEMP_UNKNOWN {
			out[name] = strconv.Itoa(v)
		}
	}

	out["freeze_protect"] = LEDPayload(d.FreezeProtect)
	out["swg"] = LEDPayload(d.SWGStatus)
	for _, pump := range d.Pumps {
		if pump.Index == 0 {
			continue
		}
		base := fmt.Sprintf("pump%d/", pump.Index)
		out[base+"rpm"] = strconv.Itoa(pump.RPM)
		out[base+"watts"] = strconv.Itoa(pump.Watts)
		out[base+"gpm"] = strconv.Itoa(pump.GPM)
	}
	return out
}

// LEDPayload is the topic value for an LED state: 0 off, 1 on, 2 enabled,
// 3 flashing
func LEDPayload(s devices.LEDState) string {
	switch s {
	case devices.LED_ON:
		return "1"
	case devices.LED_ENABLE:
		return "2"
	case devices.LED_FLASH:
		return "3"
	default:
		return "0"
	}
}

// handle turns "<prefix>/<name>/set" into a request
func (p *Publisher) handle(_ mqtt.Client, msg mqtt.Message) {
	name, ok := strings.CutPrefix(msg.Topic(), p.prefix+"/")
	if !ok {
		return
	}
	name = strings.TrimSuffix(name, "/set")
	payload := strings.TrimSpace(string(msg.Payload()))

	log := p.log.WithFields(logrus.Fields{"topic": msg.Topic(), "payload": payload})
	req, err := navigator.ParseRequest(name, strings.Fields(payload)...)
	if err != nil {
		log.WithError(err).Warn("Ignoring request")
		return
	}

	log.Info("Received request")
	task := p.ops.Submit(req)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), REQUEST_TIMEOUT)
		defer cancel()
		if err := task.Wait(ctx); err != nil {
			log.WithError(err).WithField("code", errcode.Of(err)).Error("Request failed")
		}
	}()
}
