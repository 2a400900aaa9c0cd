/*
 * Copyright 2024 The Framepipe Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mqtt republishes envelopes to a broker, or subscribes to one and
// feeds received payloads into the pipeline as raw frames.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/utils/json"
	"github.com/framepipe/framepipe/utils/str"
)

// Client modes.
const (
	ModePublisher  = "publisher"
	ModeSubscriber = "subscriber"
)

// Config for the broker connection.
type Config struct {
	// Server is the broker address, e.g. tcp://127.0.0.1:1883
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// ClientID defaults to a random id with a framepipe/ prefix
	ClientID string `yaml:"clientId"`
	// Topic to publish envelopes to, or to subscribe frames from
	Topic string `yaml:"topic"`
	// Mode is publisher or subscriber, defaulting to publisher
	Mode         string `yaml:"mode"`
	QOS          uint8  `yaml:"qos"`
	CleanSession bool   `yaml:"cleanSession"`
	// MaxReconnectInterval in seconds, defaulting to 60
	MaxReconnectInterval int `yaml:"maxReconnectInterval"`
	CAFile               string        `yaml:"caFile"`
	CertFile             string        `yaml:"certFile"`
	CertKeyFile          string        `yaml:"certKeyFile"`
}

// Client is the broker client.
type Client struct {
	conf       Config
	logger     types.Logger
	client     paho.Client
	subscribed atomic.Bool
	onFrame    atomic.Value // func([]byte)
}

// NewClient connects to the broker, retrying until ctx is done.
func NewClient(ctx context.Context, conf Config, logger types.Logger) (*Client, error) {
	if conf.Mode == "" {
		conf.Mode = ModePublisher
	}
	if conf.MaxReconnectInterval <= 0 {
		conf.MaxReconnectInterval = 60
	}

	c := &Client{
		conf:   conf,
		logger: types.NewLogger(logger),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(conf.CleanSession)
	if conf.ClientID == "" {
		//random clientId
		opts.SetClientID("framepipe/" + str.RandomStr(8))
	} else {
		opts.SetClientID(conf.ClientID)
	}
	opts.SetMaxReconnectInterval(time.Duration(conf.MaxReconnectInterval) * time.Second)
	opts.SetOnConnectHandler(c.onConnected)

	tlsconfig, err := newTLSConfig(conf.CAFile, conf.CertFile, conf.CertKeyFile)
	if err != nil {
		return nil, fmt.Errorf("error loading mqtt certificate files,ca_cert=%s,tls_cert=%s,tls_key=%s", conf.CAFile, conf.CertFile, conf.CertKeyFile)
	}
	if tlsconfig != nil {
		opts.SetTLSConfig(tlsconfig)
	}
	c.client = paho.NewClient(opts)

	for {
		if token := c.client.Connect(); token.Wait() && token.Error() != nil {
			select {
			case <-ctx.Done():
				return nil, token.Error()
			case <-time.After(2 * time.Second):
				//retry
			}
		} else {
			break
		}
	}

	return c, nil
}

// PublishEnvelope publishes env as JSON to the configured topic.
func (c *Client) PublishEnvelope(env types.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if token := c.client.Publish(c.conf.Topic, c.conf.QOS, false, data); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Subscribe registers fn as the consumer of incoming payloads and
// subscribes to the configured topic. Each payload is one raw frame.
func (c *Client) Subscribe(fn func([]byte)) error {
	c.onFrame.Store(fn)
	return c.subscribe()
}

func (c *Client) subscribe() error {
	handler := func(_ paho.Client, msg paho.Message) {
		if fn, ok := c.onFrame.Load().(func([]byte)); ok && fn != nil {
			fn(msg.Payload())
		}
	}
	if token := c.client.Subscribe(c.conf.Topic, c.conf.QOS, handler); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.subscribed.Store(true)
	return nil
}

// resubscribe on reconnect
func (c *Client) onConnected(paho.Client) {
	if c.subscribed.Load() {
		if err := c.subscribe(); err != nil {
			c.logger.Printf("mqtt resubscribe failed: %s", err)
		}
	}
}

// Subscribed reports whether the client is consuming frames from the
// broker. A subscribed client counts as an active source for the delivery
// gate.
func (c *Client) Subscribed() bool {
	return c.subscribed.Load()
}

// Active implements types.Source.
func (c *Client) Active() bool {
	return c.Subscribed()
}

// Close unsubscribes and disconnects.
func (c *Client) Close() error {
	if c.subscribed.Swap(false) {
		c.client.Unsubscribe(c.conf.Topic)
	}
	c.client.Disconnect(500)
	return nil
}

func newTLSConfig(caFile, certFile, certKeyFile string) (*tls.Config, error) {
	if caFile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	// Import trusted certificates from caFile.pem.
	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}
		certPool := x509.NewCertPool()
		certPool.AppendCertsFromPEM(caCert)

		tlsConfig.RootCAs = certPool // RootCAs = certs used to verify server cert.
	}

	// Import certificate and the key
	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}
	return tlsConfig, nil
}
