package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"predictive-maintenance/models"
	"predictive-maintenance/simulator"
)

const testInterval = 20 * time.Millisecond

type echoScorer struct {
	fail map[string]bool
}

func (s echoScorer) Predict(_ context.Context, id string, r models.EnrichedReading) (models.Prediction, error) {
	if s.fail[id] {
		return models.Prediction{}, errors.New("no model")
	}
	return models.Prediction{ID: "p-" + id, MachineID: id, Reading: r, Status: "Normal"}, nil
}

type memLatest struct {
	mu   sync.Mutex
	seen map[string]models.SensorReading
}

func (m *memLatest) SaveLatest(_ context.Context, id string, r models.SensorReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = r
	return nil
}

func TestFeed_Next(t *testing.T) {
	latest := &memLatest{seen: map[string]models.SensorReading{}}
	feed := NewFeed([]string{"press-1", "press-2", "press-3"}, simulator.New(5),
		echoScorer{fail: map[string]bool{"press-2": true}}, latest)

	updates := feed.Next(context.Background())
	if len(updates) != 2 {
		t.Fatalf("updates: got %d, want 2", len(updates))
	}
	if updates[0].MachineID != "press-1" || updates[1].MachineID != "press-3" {
		t.Errorf("order: %s, %s", updates[0].MachineID, updates[1].MachineID)
	}
	u := updates[0]
	if u.Reading.PowerFactor != u.Reading.Torque*float64(u.Reading.RPM) {
		t.Errorf("reading not derived: %+v", u.Reading)
	}
	if len(latest.seen) != 3 {
		t.Errorf("cached readings: %d", len(latest.seen))
	}
}

func startHub(t *testing.T, feed *Feed) (string, *Hub) {
	t.Helper()
	hub := NewHub(feed, testInterval)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(hub)
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func TestHub_Broadcasts(t *testing.T) {
	feed := NewFeed([]string{"press-1"}, simulator.New(9), echoScorer{}, nil)
	url, _ := startHub(t, feed)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != "readings" || len(msg.Data) != 1 || msg.Data[0].MachineID != "press-1" {
		t.Errorf("message: %+v", msg)
	}
}

func TestHub_CountTracksClients(t *testing.T) {
	feed := NewFeed([]string{"press-1"}, simulator.New(9), echoScorer{}, nil)
	url, hub := startHub(t, feed)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.Count() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestHub_RejectsPlainHTTP(t *testing.T) {
	hub := NewHub(NewFeed(nil, simulator.New(1), echoScorer{}, nil), time.Second)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/live", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestHub_BroadcastWhileClientsLeave(t *testing.T) {
	hub := NewHub(NewFeed(nil, simulator.New(1), echoScorer{}, nil), time.Second)
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c := &client{send: make(chan []byte, 1)}
				hub.register(c)
				hub.unregister(c)
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		hub.broadcast(ctx)
	}
	close(stop)
	wg.Wait()

	if n := hub.Count(); n != 0 {
		t.Errorf("clients left registered: %d", n)
	}
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	hub := NewHub(NewFeed(nil, simulator.New(1), echoScorer{}, nil), time.Second)
	c := &client{send: make(chan []byte, 1)}
	hub.register(c)

	hub.broadcast(context.Background())
	hub.broadcast(context.Background())

	if hub.Count() != 0 {
		t.Fatal("slow consumer still registered")
	}
	if _, ok := <-c.send; !ok {
		t.Fatal("first message lost")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel not closed")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
