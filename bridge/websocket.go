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

// Package bridge exposes the envelope stream and the configuration surface
// to rendering and republishing collaborators.
package bridge

import (
	"net/http"
	"sync"

	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/utils/json"
	"github.com/gorilla/websocket"
)

// WSHub broadcasts envelopes to connected websocket clients. Clients that
// fail a write are dropped.
type WSHub struct {
	logger   types.Logger
	upgrader websocket.Upgrader

	// serializes writes; envelopes may be delivered from concurrent tasks
	writeMu sync.Mutex

	sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewWSHub creates an empty hub.
func NewWSHub(logger types.Logger) *WSHub {
	return &WSHub{
		logger: types.NewLogger(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. Incoming messages are discarded.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade: %s", err)
		return
	}

	h.Lock()
	h.clients[conn] = struct{}{}
	h.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Broadcast sends env to all connected clients in delivery order.
func (h *WSHub) Broadcast(env types.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Printf("ws marshal: %s", err)
		return
	}

	h.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(conn)
		}
	}
}

func (h *WSHub) drop(conn *websocket.Conn) {
	h.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.Unlock()
}

// Close disconnects all clients.
func (h *WSHub) Close() error {
	h.Lock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.Unlock()
	return nil
}
