/*
 * Copyright 2019 The CovenantSQL Authors.
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

// Package eventbus is a small in-process topic bus.
//
// Handlers are registered per topic and receive every payload published on it. Synchronous
// handlers run inside Publish; asynchronous ones run on their own goroutine and, when
// transactional, one at a time in publish order.
package eventbus

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNoSubscription defines error on removing a subscription that does not exist.
var ErrNoSubscription = errors.New("no such subscription")

// Handler consumes one published payload.
type Handler func(topic string, payload interface{})

// Subscription identifies a registered handler.
type Subscription uint64

// Bus is the topic bus.
type Bus struct {
	lock     sync.Mutex
	wg       sync.WaitGroup
	nextID   Subscription
	handlers map[string][]*eventHandler
}

type eventHandler struct {
	id            Subscription
	callBack      Handler
	flagOnce      bool
	async         bool
	transactional bool
	sync.Mutex    // serializes transactional async callbacks
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]*eventHandler),
	}
}

func (bus *Bus) doSubscribe(topic string, handler *eventHandler) (Subscription, error) {
	if handler.callBack == nil {
		return 0, errors.Errorf("nil handler for topic %s", topic)
	}
	bus.lock.Lock()
	defer bus.lock.Unlock()
	bus.nextID++
	handler.id = bus.nextID
	bus.handlers[topic] = append(bus.handlers[topic], handler)
	return handler.id, nil
}

// Subscribe runs fn inside every Publish on topic.
func (bus *Bus) Subscribe(topic string, fn Handler) (Subscription, error) {
	return bus.doSubscribe(topic, &eventHandler{callBack: fn})
}

// SubscribeAsync runs fn on its own goroutine for every Publish on topic. Transactional
// subscriptions handle payloads serially.
func (bus *Bus) SubscribeAsync(topic string, fn Handler, transactional bool) (Subscription, error) {
	return bus.doSubscribe(topic, &eventHandler{callBack: fn, async: true, transactional: transactional})
}

// SubscribeOnce runs fn for the next Publish on topic only.
func (bus *Bus) SubscribeOnce(topic string, fn Handler) (Subscription, error) {
	return bus.doSubscribe(topic, &eventHandler{callBack: fn, flagOnce: true})
}

// HasCallback reports whether topic has any subscriber.
func (bus *Bus) HasCallback(topic string) bool {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	return len(bus.handlers[topic]) > 0
}

// Unsubscribe removes a subscription from topic.
func (bus *Bus) Unsubscribe(topic string, id Subscription) error {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	for i, h := range bus.handlers[topic] {
		if h.id == id {
			bus.removeHandler(topic, i)
			return nil
		}
	}
	return errors.Wrapf(ErrNoSubscription, "topic %s", topic)
}

// Publish hands payload to every subscriber of topic.
func (bus *Bus) Publish(topic string, payload interface{}) {
	bus.lock.Lock()
	handlers := make([]*eventHandler, len(bus.handlers[topic]))
	copy(handlers, bus.handlers[topic])
	for _, h := range handlers {
		if h.flagOnce {
			bus.removeHandler(topic, bus.findHandlerIdx(topic, h.id))
		}
	}
	bus.lock.Unlock()

	for _, h := range handlers {
		if !h.async {
			h.callBack(topic, payload)
			continue
		}
		bus.wg.Add(1)
		if h.transactional {
			h.Lock()
		}
		go bus.doPublishAsync(h, topic, payload)
	}
}

func (bus *Bus) doPublishAsync(h *eventHandler, topic string, payload interface{}) {
	defer bus.wg.Done()
	if h.transactional {
		defer h.Unlock()
	}
	h.callBack(topic, payload)
}

func (bus *Bus) removeHandler(topic string, idx int) {
	l := len(bus.handlers[topic])
	if idx < 0 || idx >= l {
		return
	}
	copy(bus.handlers[topic][idx:], bus.handlers[topic][idx+1:])
	bus.handlers[topic][l-1] = nil
	bus.handlers[topic] = bus.handlers[topic][:l-1]
}

func (bus *Bus) findHandlerIdx(topic string, id Subscription) int {
	for idx, h := range bus.handlers[topic] {
		if h.id == id {
			return idx
		}
	}
	return -1
}

// WaitAsync waits for all running async callbacks to return.
func (bus *Bus) WaitAsync() {
	bus.wg.Wait()
}
