package hub

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/wire"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db, "TEST"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testServer struct {
	hub    *Hub
	db     *gorm.DB
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	h := NewHub(db, Config{BaseURL: "http://localhost:8000"})

	router := gin.New()
	router.GET("/ws/:id", h.HandleWebSocket)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		h.Shutdown()
		server.Close()
	})

	return &testServer{hub: h, db: db, server: server}
}

func (ts *testServer) dial(t *testing.T, identity uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws/" + identity.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal frame %s: %v", data, err)
	}
	return m
}

func writeFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func registerPrinter(t *testing.T, db *gorm.DB, mutate func(*database.Printer)) *database.Printer {
	t.Helper()
	printer := &database.Printer{
		Name:            "hallway",
		Platform:        "esp8266",
		FirmwareVersion: "1.0.0",
		AutoUpdate:      true,
		UpdateChannel:   database.ChannelStable,
	}
	if mutate != nil {
		mutate(printer)
	}
	if err := database.NewPrinterService(db).Register(printer); err != nil {
		t.Fatalf("register printer: %v", err)
	}
	return printer
}

func subscribe(t *testing.T, conn *websocket.Conn, printer *database.Printer) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"kind":             "subscription",
		"printer_name":     printer.Name,
		"printer_id":       printer.ID.String(),
		"platform":         printer.Platform,
		"firmware_version": printer.FirmwareVersion,
		"auto_update":      printer.AutoUpdate,
		"update_channel":   printer.UpdateChannel,
	})
	status := readFrame(t, conn)
	if status["kind"] != wire.KindStatus || status["level"] != wire.LevelInfo {
		t.Fatalf("expected subscription status frame, got %v", status)
	}
}

func TestCacheDrainOnSubscription(t *testing.T) {
	ts := newTestServer(t)
	printer := registerPrinter(t, ts.db, nil)
	sender := uuid.New()

	// Printer offline: route a message; it must land in log and cache.
	err := ts.hub.RouteMessage(sender, &wire.Message{
		Type:        wire.KindMessage,
		RecipientID: printer.ID,
		SenderName:  "Alice",
		Message:     "Hi",
	})
	if err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}

	var logs []database.MessageLog
	if err := ts.db.Find(&logs).Error; err != nil || len(logs) != 1 {
		t.Fatalf("message log rows = %d (%v), want 1", len(logs), err)
	}
	cached, err := database.NewMessageService(ts.db).UndeliveredCache(printer.ID)
	if err != nil || len(cached) != 1 {
		t.Fatalf("undelivered cache rows = %d (%v), want 1", len(cached), err)
	}

	// Printer connects and subscribes; the cached message is drained.
	conn := ts.dial(t, printer.ID)
	subscribe(t, conn, printer)

	outbound := readFrame(t, conn)
	if outbound["kind"] != wire.KindOutbound {
		t.Fatalf("expected outbound frame, got %v", outbound)
	}
	if outbound["sender_name"] != "Alice" || outbound["message"] != "Hi" {
		t.Errorf("outbound payload = %v", outbound)
	}
	if outbound["daily_number"] != float64(1) {
		t.Errorf("daily_number = %v, want 1", outbound["daily_number"])
	}

	// The row is marked delivered once written.
	deadline := time.Now().Add(2 * time.Second)
	for {
		cached, _ = database.NewMessageService(ts.db).UndeliveredCache(printer.ID)
		if len(cached) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache row never marked delivered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveDeliveryToConnectedPrinter(t *testing.T) {
	ts := newTestServer(t)
	printer := registerPrinter(t, ts.db, nil)

	printerConn := ts.dial(t, printer.ID)
	subscribe(t, printerConn, printer)

	userID := uuid.New()
	userConn := ts.dial(t, userID)
	writeFrame(t, userConn, map[string]any{
		"kind":         "message",
		"recipient_id": printer.ID.String(),
		"sender_name":  "Bob",
		"message":      "first",
	})
	writeFrame(t, userConn, map[string]any{
		"kind":         "message",
		"recipient_id": printer.ID.String(),
		"sender_name":  "Bob",
		"message":      "second",
	})

	first := readFrame(t, printerConn)
	second := readFrame(t, printerConn)
	if first["message"] != "first" || second["message"] != "second" {
		t.Errorf("messages out of order: %v then %v", first["message"], second["message"])
	}
	if first["daily_number"] != float64(1) || second["daily_number"] != float64(2) {
		t.Errorf("daily numbers = %v, %v", first["daily_number"], second["daily_number"])
	}

	// Nothing cached for an online recipient.
	cached, _ := database.NewMessageService(ts.db).UndeliveredCache(printer.ID)
	if len(cached) != 0 {
		t.Errorf("cache rows = %d, want 0", len(cached))
	}
}

func TestUnknownRecipientStatusError(t *testing.T) {
	ts := newTestServer(t)

	userConn := ts.dial(t, uuid.New())
	writeFrame(t, userConn, map[string]any{
		"kind":         "message",
		"recipient_id": uuid.New().String(),
		"sender_name":  "Bob",
		"message":      "hello?",
	})

	status := readFrame(t, userConn)
	if status["kind"] != wire.KindStatus || status["level"] != wire.LevelError {
		t.Errorf("expected error status, got %v", status)
	}
}

func TestMalformedFrameStatusError(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t, uuid.New())
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	status := readFrame(t, conn)
	if status["kind"] != wire.KindStatus || status["level"] != wire.LevelError {
		t.Errorf("expected error status, got %v", status)
	}

	// The session stays open for well-formed traffic.
	writeFrame(t, conn, map[string]any{
		"kind":         "message",
		"recipient_id": uuid.New().String(),
		"sender_name":  "Bob",
		"message":      "still here",
	})
	status = readFrame(t, conn)
	if status["kind"] != wire.KindStatus {
		t.Errorf("session should answer after a malformed frame, got %v", status)
	}
}

func TestSubscriptionTriggersFirmwarePush(t *testing.T) {
	ts := newTestServer(t)
	printer := registerPrinter(t, ts.db, nil)

	fw := &database.FirmwareVersion{
		Version:  "1.5.0",
		Platform: "esp8266",
		Data:     []byte{0x01, 0x02},
		FileSize: 2,
		MD5:      "0cb988d042a9f52cbd2b24939e7efa41",
	}
	if err := database.NewFirmwareService(ts.db).Create(fw); err != nil {
		t.Fatalf("create firmware: %v", err)
	}

	rolloutSvc := database.NewRolloutService(ts.db)
	rollout := &database.UpdateRollout{Version: "1.5.0", TargetAll: true}
	if err := rolloutSvc.Create(rollout); err != nil {
		t.Fatalf("create rollout: %v", err)
	}
	if _, err := rolloutSvc.SetStatus(rollout.ID, database.RolloutStatusActive); err != nil {
		t.Fatalf("activate rollout: %v", err)
	}

	conn := ts.dial(t, printer.ID)
	subscribe(t, conn, printer)

	push := readFrame(t, conn)
	if push["kind"] != wire.KindFirmwareUpdate {
		t.Fatalf("expected firmware_update, got %v", push)
	}
	if push["version"] != "1.5.0" || push["md5"] != fw.MD5 {
		t.Errorf("push payload = %v", push)
	}

	// The printer reports progress then completion.
	writeFrame(t, conn, map[string]any{
		"kind": "firmware_progress", "percent": 50, "status": "downloading",
	})
	writeFrame(t, conn, map[string]any{
		"kind": "firmware_complete", "version": "1.5.0",
	})

	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := database.NewRolloutService(ts.db).GetByID(rollout.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.CompletedCount == 1 {
			if got.PendingCount != 0 {
				t.Errorf("pending = %d, want 0", got.PendingCount)
			}
			if got.Status != database.RolloutStatusCompleted {
				t.Errorf("status = %q, want completed after drain", got.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rollout counters never updated: %+v", got)
		}
		time.Sleep(20 * time.Millisecond)
	}

	updated, err := database.NewPrinterService(ts.db).GetByID(printer.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.FirmwareVersion != "1.5.0" {
		t.Errorf("printer firmware = %q, want 1.5.0", updated.FirmwareVersion)
	}
}

func TestPrinterOnlineOfflineTracking(t *testing.T) {
	ts := newTestServer(t)
	printer := registerPrinter(t, ts.db, nil)

	conn := ts.dial(t, printer.ID)
	subscribe(t, conn, printer)

	if !ts.hub.IsConnected(printer.ID) {
		t.Fatal("printer should be connected after subscription")
	}
	got, _ := database.NewPrinterService(ts.db).GetByID(printer.ID)
	if !got.Online {
		t.Error("printer should be persisted online")
	}

	conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for ts.hub.IsConnected(printer.ID) {
		if time.Now().After(deadline) {
			t.Fatal("printer never detached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		got, _ = database.NewPrinterService(ts.db).GetByID(printer.ID)
		if !got.Online {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("printer never persisted offline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatchBitmapValidation(t *testing.T) {
	ts := newTestServer(t)
	printer := registerPrinter(t, ts.db, nil)

	bitmap := func(width, height int) *wire.PrintBitmap {
		data := make([]byte, width*height/8)
		return &wire.PrintBitmap{
			Type:   wire.KindPrintBitmap,
			Width:  width,
			Height: height,
			Data:   base64.StdEncoding.EncodeToString(data),
		}
	}

	// Offline recipient surfaces to the caller, never cached.
	err := ts.hub.DispatchBitmap(printer.ID, bitmap(384, 8))
	if !errors.Is(err, ErrRecipientNotConnected) {
		t.Errorf("offline dispatch err = %v, want ErrRecipientNotConnected", err)
	}

	conn := ts.dial(t, printer.ID)
	subscribe(t, conn, printer)

	for _, width := range []int{8, 384, 576} {
		if err := ts.hub.DispatchBitmap(printer.ID, bitmap(width, 8)); err != nil {
			t.Errorf("width %d should be accepted: %v", width, err)
		}
		frame := readFrame(t, conn)
		if frame["kind"] != wire.KindPrintBitmap {
			t.Errorf("expected print_bitmap, got %v", frame)
		}
	}

	for _, width := range []int{7, 9} {
		frame := &wire.PrintBitmap{
			Type:   wire.KindPrintBitmap,
			Width:  width,
			Height: 8,
			Data:   base64.StdEncoding.EncodeToString(make([]byte, width)),
		}
		if err := ts.hub.DispatchBitmap(printer.ID, frame); !errors.Is(err, ErrInvalidBitmap) {
			t.Errorf("width %d should be rejected, got %v", width, err)
		}
	}

	// Length mismatch.
	bad := bitmap(384, 8)
	bad.Data = base64.StdEncoding.EncodeToString(make([]byte, 100))
	if err := ts.hub.DispatchBitmap(printer.ID, bad); !errors.Is(err, ErrInvalidBitmap) {
		t.Errorf("length mismatch should be rejected, got %v", err)
	}

	// Unknown printer.
	if err := ts.hub.DispatchBitmap(uuid.New(), bitmap(8, 8)); !errors.Is(err, database.ErrPrinterNotFound) {
		t.Errorf("unknown printer err = %v", err)
	}
}

func TestFirmwareFramesRejectedFromUserSessions(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t, uuid.New())
	writeFrame(t, conn, map[string]any{
		"kind": "firmware_complete", "version": "1.5.0",
	})

	status := readFrame(t, conn)
	if status["kind"] != wire.KindStatus || status["level"] != wire.LevelError {
		t.Errorf("expected error status, got %v", status)
	}
}

func TestBroadcastCountsSessions(t *testing.T) {
	ts := newTestServer(t)
	identity := uuid.New()

	connA := ts.dial(t, identity)
	connB := ts.dial(t, identity)

	// Both sessions register with the hub before we broadcast.
	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.SessionCount(identity) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("sessions never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	n := ts.hub.Broadcast(identity, wire.NewStatus(wire.LevelInfo, "hello"))
	if n != 2 {
		t.Errorf("Broadcast delivered to %d sessions, want 2", n)
	}
	for _, conn := range []*websocket.Conn{connA, connB} {
		frame := readFrame(t, conn)
		if frame["message"] != "hello" {
			t.Errorf("frame = %v", frame)
		}
	}
}
