// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vault

import (
	"sync"

	"github.com/zintix-labs/flipvault/errs"
	"github.com/zintix-labs/flipvault/keyvaluedb"
)

const maxEventPage = 1000

// appendEvent 在 tx 內配發序號並寫入事件。
func appendEvent(tx keyvaluedb.ReadWriter, e Event) (Event, error) {
	var seq uint64
	if _, err := tx.Read(keyEventSeq, &seq); err != nil {
		return Event{}, errs.Wrap(err, "read event seq failed")
	}
	seq++
	e.Seq = seq
	rec := e.record()
	if err := tx.Write(eventKey(seq), &rec); err != nil {
		return Event{}, errs.Wrap(err, "write event failed")
	}
	if err := tx.Write(keyEventSeq, &seq); err != nil {
		return Event{}, errs.Wrap(err, "write event seq failed")
	}
	return e, nil
}

// Events 回傳 Seq >= from 的事件，最多 limit 筆（limit <= 0 或過大時取 1000）。
func (v *Vault) Events(from uint64, limit int) ([]Event, error) {
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Event, 0, min(limit, 64))
	for seq := max(from, 1); len(out) < limit; seq++ {
		var rec eventRecord
		found, err := v.store.Read(eventKey(seq), &rec)
		if err != nil {
			return nil, errs.Wrap(err, "read event failed")
		}
		if !found {
			break
		}
		out = append(out, rec.event())
	}
	return out, nil
}

// LastEventSeq 回傳最後一個事件的序號（沒有事件時為 0）。
func (v *Vault) LastEventSeq() (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var seq uint64
	if _, err := v.store.Read(keyEventSeq, &seq); err != nil {
		return 0, errs.Wrap(err, "read event seq failed")
	}
	return seq, nil
}

// Subscribe 註冊行程內的事件監聽者，回傳接收 channel 與取消函式。
// 事件在 commit 後才送出；channel 滿時直接丟棄（不阻塞結算路徑），
// 遺漏的事件可由 Events 依序號補回。
func (v *Vault) Subscribe(buf int) (<-chan Event, func()) {
	return v.subs.add(buf)
}

type subscribers struct {
	mu   sync.Mutex
	next int
	chs  map[int]chan Event
}

func newSubscribers() *subscribers {
	return &subscribers{chs: make(map[int]chan Event)}
}

func (s *subscribers) add(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Event, buf)
	s.mu.Lock()
	id := s.next
	s.next++
	s.chs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.chs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *subscribers) publish(e Event, met *vaultMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chs {
		select {
		case ch <- e:
		default:
			met.eventsDropped.Inc(1)
		}
	}
}
