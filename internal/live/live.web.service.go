// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package live pushes decisions, plans and evaluations to browsers over a
// websocket as they happen.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"heatpilot/v2/internal/events"
	"heatpilot/v2/pkg/eventbus"
	"heatpilot/v2/pkg/logger"

	"github.com/gorilla/websocket"
)

// Message is one frame on the feed.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var topics = []eventbus.Topic{
	events.TopicDecision,
	events.TopicPlan,
	events.TopicEvaluation,
	events.TopicWeather,
}

type clientSet struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func (c *clientSet) add(ws *websocket.Conn) {
	c.mu.Lock()
	c.clients[ws] = true
	c.mu.Unlock()
}

func (c *clientSet) remove(ws *websocket.Conn) {
	c.mu.Lock()
	delete(c.clients, ws)
	c.mu.Unlock()
}

func (c *clientSet) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

func (c *clientSet) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Debug("dropping client: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *clientSet) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

// Feed relays bus events to websocket clients.
type Feed struct {
	eb       *eventbus.Bus
	clients  *clientSet
	upgrader websocket.Upgrader
	ready    chan struct{}
	log      *logger.Logger
}

func NewFeed(eb *eventbus.Bus) *Feed {
	f := &Feed{
		eb:      eb,
		clients: &clientSet{clients: make(map[*websocket.Conn]bool)},
		ready:   make(chan struct{}),
		log:     logger.New("Live"),
	}
	f.upgrader = websocket.Upgrader{CheckOrigin: f.checkOrigin}
	return f
}

func (f *Feed) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	if strings.Contains(origin, "localhost") {
		return true
	}
	return strings.Contains(origin, r.Host)
}

func (f *Feed) Run(ctx context.Context) {
	defer f.clients.closeAll()

	type tagged struct {
		topic eventbus.Topic
		ev    eventbus.Event
	}
	merged := make(chan tagged)
	wg := sync.WaitGroup{}
	for _, topic := range topics {
		ch, unsub := f.eb.Subscribe(ctx, topic, false)
		wg.Go(func() {
			defer unsub()
			for ev := range ch {
				select {
				case merged <- tagged{topic, ev}:
				case <-ctx.Done():
					return
				}
			}
		})
	}
	close(f.ready)
	f.log.Info("Relaying %d topics", len(topics))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			f.log.Info("Stopped")
			return
		case m := <-merged:
			f.send(Message{Type: string(m.topic), Data: m.ev})
		}
	}
}

func (f *Feed) send(msg Message) {
	if f.clients.len() == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		f.log.Error("failed to marshal %s: %v", msg.Type, err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		f.log.Error("failed to prepare message: %v", err)
		return
	}
	f.clients.broadcast(pm, f.log)
}

// ServeHTTP serves the feed page on / and the websocket on /ws.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ws":
		f.serveWebSocket(w, r)
	case "/", "":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	default:
		http.NotFound(w, r)
	}
}

// serveWebSocket sends the latest event of every topic, then keeps the
// client registered until it disconnects. Client frames are ignored.
func (f *Feed) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Error("failed to upgrade websocket: %v", err)
		return
	}

	f.clients.mu.Lock()
	for _, topic := range topics {
		if ev, ok := f.eb.GetLast(topic); ok {
			if err := ws.WriteJSON(Message{Type: string(topic), Data: ev}); err != nil {
				f.clients.mu.Unlock()
				ws.Close()
				return
			}
		}
	}
	f.clients.clients[ws] = true
	f.clients.mu.Unlock()

	defer func() {
		f.clients.remove(ws)
		ws.Close()
	}()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Debug("client gone: %v", err)
			}
			return
		}
	}
}

const page = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Live decisions</title>
<style>
body { font-family: monospace; margin: 1em; }
li { margin-bottom: 0.4em; }
.decision { color: #0b5394; }
.plan { color: #38761d; }
.evaluation { color: #990000; }
</style>
</head>
<body>
<h2>Live feed</h2>
<ul id="feed"></ul>
<script>
const proto = location.protocol === "https:" ? "wss://" : "ws://";
const ws = new WebSocket(proto + location.host + location.pathname.replace(/\/$/, "") + "/ws");
ws.onmessage = (e) => {
  const msg = JSON.parse(e.data);
  const li = document.createElement("li");
  li.className = msg.type;
  li.textContent = new Date().toLocaleTimeString() + " " + msg.type + " " + JSON.stringify(msg.data);
  const feed = document.getElementById("feed");
  feed.insertBefore(li, feed.firstChild);
  while (feed.children.length > 200) feed.removeChild(feed.lastChild);
};
</script>
</body>
</html>
`
