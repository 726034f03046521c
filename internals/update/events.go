// Copyright (c) 2024 Big Cove Technologies Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package update

import (
	"time"
)

// Event is one pipeline state transition.
type Event struct {
	Time    time.Time `json:"time"`
	State   State     `json:"state"`
	Message string    `json:"message,omitempty"`
}

// Subscribe returns a channel receiving pipeline events, plus a cancel
// function that must be called to release it. A subscriber that falls
// behind loses events rather than blocking the pipeline.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	o.eventsMu.Lock()
	defer o.eventsMu.Unlock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan Event, 16)
	o.subs[id] = ch
	return ch, func() {
		o.eventsMu.Lock()
		defer o.eventsMu.Unlock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
	}
}

func (o *Orchestrator) transition(state State, message string) {
	o.eventsMu.Lock()
	defer o.eventsMu.Unlock()
	o.state = state
	ev := Event{Time: time.Now(), State: state, Message: message}
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
