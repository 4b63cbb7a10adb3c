package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"predictive-maintenance/models"
)

func newClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisClient(context.Background(), mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func TestLatestReading(t *testing.T) {
	rc, mr := newClient(t)
	ctx := context.Background()

	got, err := rc.GetLatest(ctx, "press-1")
	if err != nil || got != nil {
		t.Fatalf("empty cache: got %v, %v", got, err)
	}

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	want := models.SensorReading{AirTemp: 301, ProcessTemp: 311, RPM: 1480, Torque: 41.5, ToolWear: 7, Timestamp: at}
	if err := rc.SaveLatest(ctx, "press-1", want); err != nil {
		t.Fatalf("SaveLatest: %v", err)
	}
	got, err = rc.GetLatest(ctx, "press-1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got.RPM != want.RPM || got.Torque != want.Torque || !got.Timestamp.Equal(at) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	mr.FastForward(2 * time.Minute)
	if got, _ := rc.GetLatest(ctx, "press-1"); got != nil {
		t.Error("reading outlived its TTL")
	}
}

func TestAnalysis(t *testing.T) {
	rc, _ := newClient(t)
	ctx := context.Background()

	in := models.MachineAnalysis{MachineID: "press-2", RollingPowerFactor: 59000, IsAnomaly: true, ZScore: 3.2, Samples: 12}
	if err := rc.SaveAnalysis(ctx, "press-2", in); err != nil {
		t.Fatal(err)
	}
	got, err := rc.GetAnalysis(ctx, "press-2")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.IsAnomaly || got.Samples != 12 {
		t.Errorf("got %+v", got)
	}
}

func TestGetLatest_CorruptValue(t *testing.T) {
	rc, mr := newClient(t)
	mr.Set(latestPrefix+"press-3", "{not json")
	if _, err := rc.GetLatest(context.Background(), "press-3"); err == nil {
		t.Error("want decode error")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisClient(context.Background(), addr, time.Minute); err == nil {
		t.Error("want ping error")
	}
}
