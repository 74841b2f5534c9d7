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

package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBus(t *testing.T) {
	Convey("Given a bus", t, func() {
		bus := New()
		topic := "/publish/call"

		Convey("Subscribing should register a callback", func() {
			_, err := bus.Subscribe(topic, func(string, interface{}) {})
			So(err, ShouldBeNil)
			So(bus.HasCallback(topic), ShouldBeTrue)
			So(bus.HasCallback("/other"), ShouldBeFalse)
			_, err = bus.Subscribe(topic, nil)
			So(err, ShouldNotBeNil)
		})
		Convey("Unsubscribing twice should fail the second time", func() {
			id, err := bus.Subscribe(topic, func(string, interface{}) {})
			So(err, ShouldBeNil)
			So(bus.Unsubscribe(topic, id), ShouldBeNil)
			So(errors.Cause(bus.Unsubscribe(topic, id)), ShouldEqual, ErrNoSubscription)
			So(bus.HasCallback(topic), ShouldBeFalse)
		})
		Convey("Once and regular subscribers should all fire", func() {
			var flag int
			fn := func(string, interface{}) { flag++ }
			_, _ = bus.SubscribeOnce(topic, fn)
			_, _ = bus.Subscribe(topic, fn)
			_, _ = bus.Subscribe(topic, fn)
			bus.Publish(topic, nil)
			So(flag, ShouldEqual, 3)
			bus.Publish(topic, nil)
			So(flag, ShouldEqual, 5)
		})
		Convey("Payloads should be passed through", func() {
			var got interface{}
			_, _ = bus.Subscribe(topic, func(tp string, payload interface{}) {
				So(tp, ShouldEqual, topic)
				got = payload
			})
			bus.Publish(topic, 42)
			So(got, ShouldEqual, 42)
		})
		Convey("Transactional async subscribers should keep publish order", func() {
			var (
				lock    sync.Mutex
				results []int
			)
			_, _ = bus.SubscribeAsync(topic, func(_ string, payload interface{}) {
				if payload.(int) == 1 {
					time.Sleep(100 * time.Millisecond)
				}
				lock.Lock()
				results = append(results, payload.(int))
				lock.Unlock()
			}, true)
			bus.Publish(topic, 1)
			bus.Publish(topic, 2)
			bus.WaitAsync()
			So(results, ShouldResemble, []int{1, 2})
		})
		Convey("Concurrent async subscribers should all run", func() {
			var n int32
			_, _ = bus.SubscribeAsync(topic, func(string, interface{}) {
				atomic.AddInt32(&n, 1)
			}, false)
			for i := 0; i < 10; i++ {
				bus.Publish(topic, i)
			}
			bus.WaitAsync()
			So(atomic.LoadInt32(&n), ShouldEqual, 10)
		})
	})
}
