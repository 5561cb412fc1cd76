package httpserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradingsim/internal/simmodel"
)

// upgrader accepts any origin; origin allow-listing is a named
// out-of-scope external collaborator (spec §1) for this module.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient adapts a gorilla websocket connection to broadcast.Client,
// serialising concurrent writes with its own mutex since gorilla
// connections are not safe for concurrent writers (grounded on the
// teacher's ws.go write-loop discipline).
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// clientMessage is the client->server envelope from spec §6: {type,
// simulationId?, requestId?, data?}.
type clientMessage struct {
	Type         string                 `json:"type"`
	SimulationID string                 `json:"simulationId"`
	RequestID    string                 `json:"requestId"`
	Data         map[string]interface{} `json:"data"`
}

// events upgrades the connection and runs its read loop until the
// client disconnects. Events of the subscribed simulation arrive through
// BroadcastHub; replies to the client's own messages (welcome,
// subscribe_response, status, pong, errors) are written directly to the
// connection.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpserver: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{id: r.RemoteAddr + "-" + time.Now().String(), conn: conn}
	_ = client.Send(mustMarshal(map[string]interface{}{
		"event": map[string]interface{}{"type": "welcome", "timestamp": time.Now().UnixMilli()},
	}))

	var subscribedSim string
	defer func() {
		if subscribedSim != "" {
			h.deps.Hub.RemoveClient(subscribedSim, client)
		}
	}()

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Connection policy: reject any inbound frame whose first byte is
		// the gzip magic 0x1F (spec §6).
		if len(raw) > 0 && raw[0] == 0x1F {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(1003, "compressed frames are not accepted"),
				time.Now().Add(time.Second))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = client.Send(mustMarshal(errorEnvelope("", "invalid message")))
			continue
		}

		h.handleClientMessage(client, &subscribedSim, msg)
	}
}

func (h *handlers) handleClientMessage(client *wsClient, subscribedSim *string, msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		if *subscribedSim != "" {
			h.deps.Hub.RemoveClient(*subscribedSim, client)
		}
		h.deps.Hub.AddClient(msg.SimulationID, client)
		*subscribedSim = msg.SimulationID
		_ = client.Send(mustMarshal(responseEnvelope(msg.SimulationID, "subscribe_response", map[string]interface{}{"requestId": msg.RequestID})))

	case "unsubscribe":
		h.deps.Hub.RemoveClient(msg.SimulationID, client)
		if *subscribedSim == msg.SimulationID {
			*subscribedSim = ""
		}

	case "get_status":
		sim, ok := h.deps.Registry.Get(msg.SimulationID)
		if !ok {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, "unknown simulation id")))
			return
		}
		_ = client.Send(mustMarshal(responseEnvelope(msg.SimulationID, "simulation_state", snapshotData(sim.Snapshot()))))

	case "setPauseState":
		sim, ok := h.deps.Registry.Get(msg.SimulationID)
		if !ok {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, "unknown simulation id")))
			return
		}
		paused, _ := msg.Data["paused"].(bool)
		var err error
		if paused {
			err = sim.Pause()
		} else {
			err = sim.Start()
		}
		if err != nil {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, err.Error())))
		}

	case "set_tps_mode":
		sim, ok := h.deps.Registry.Get(msg.SimulationID)
		if !ok {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, "unknown simulation id")))
			return
		}
		mode, _ := msg.Data["mode"].(string)
		if err := sim.SetTPSMode(simmodel.TPSMode(mode)); err != nil {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, err.Error())))
		}

	case "get_tps_status":
		sim, ok := h.deps.Registry.Get(msg.SimulationID)
		if !ok {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, "unknown simulation id")))
			return
		}
		_ = client.Send(mustMarshal(responseEnvelope(msg.SimulationID, "tps_mode_changed", map[string]interface{}{"mode": sim.TPSMode()})))

	case "trigger_liquidation_cascade":
		sim, ok := h.deps.Registry.Get(msg.SimulationID)
		if !ok {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, "unknown simulation id")))
			return
		}
		res, err := sim.LiquidationCascade()
		if err != nil {
			_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, "invalid_mode")))
			return
		}
		_ = client.Send(mustMarshal(responseEnvelope(msg.SimulationID, "liquidation_cascade_triggered", map[string]interface{}{
			"ordersGenerated": res.OrdersGenerated, "estimatedImpact": res.EstimatedImpact, "cascadeSize": res.CascadeSize,
		})))

	case "get_stress_capabilities":
		_ = client.Send(mustMarshal(responseEnvelope(msg.SimulationID, "stress_capabilities", map[string]interface{}{
			"modes": []string{"NORMAL", "BURST", "STRESS", "HFT"},
		})))

	case "ping":
		_ = client.Send(mustMarshal(responseEnvelope(msg.SimulationID, "pong", nil)))

	default:
		_ = client.Send(mustMarshal(errorEnvelope(msg.SimulationID, "unknown message type")))
	}
}

func responseEnvelope(simID, eventType string, data map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"simulationId": simID,
		"event": map[string]interface{}{
			"type":      eventType,
			"timestamp": time.Now().UnixMilli(),
			"data":      data,
		},
	}
}

func errorEnvelope(simID, msg string) map[string]interface{} {
	return responseEnvelope(simID, "error", map[string]interface{}{"message": msg})
}

func snapshotData(snap simmodel.Snapshot) map[string]interface{} {
	return map[string]interface{}{"state": snap}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"event":{"type":"error","data":{"message":"internal serialization error"}}}`)
	}
	return b
}
