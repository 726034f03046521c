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

package daemon

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Big-Cove/nerves-zero-downtime/internals/logger"
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is a local trusted socket, not a browser surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const eventsPingInterval = 30 * time.Second

// v1GetEvents upgrades to a websocket and streams update pipeline events
// until the client goes away or the daemon stops.
func v1GetEvents(c *Command, r *http.Request) Response {
	return websocketResponse{c: c}
}

type websocketResponse struct {
	c *Command
}

func (rsp websocketResponse) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Noticef("Cannot upgrade events connection: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := rsp.c.d.options.Orchestrator.Subscribe()
	defer cancel()

	// Reads are discarded, but the read loop notices a closed peer.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-rsp.c.d.tomb.Dying():
			return
		}
	}
}
