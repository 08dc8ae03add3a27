package messaging

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestIsConnectedReflectsState(t *testing.T) {
	c := &Client{connected: true, logger: zap.NewNop()}
	if !c.IsConnected() {
		t.Fatal("expected IsConnected() to be true")
	}
	c.connected = false
	if c.IsConnected() {
		t.Fatal("expected IsConnected() to be false after flipping the flag")
	}
}

func TestPublishRejectsWhenDisconnected(t *testing.T) {
	c := &Client{connected: false, logger: zap.NewNop()}
	err := c.Publish(context.Background(), "hive.battle.finished", map[string]string{"reason": "timeout"})
	if err == nil {
		t.Fatal("expected Publish() to fail on a disconnected client")
	}
}

func TestDeclareQueueRejectsWhenDisconnected(t *testing.T) {
	c := &Client{connected: false, logger: zap.NewNop()}
	if err := c.DeclareQueue("hive.events", []string{"hive.battle.*"}); err == nil {
		t.Fatal("expected DeclareQueue() to fail on a disconnected client")
	}
}

func TestConsumeRejectsWhenDisconnected(t *testing.T) {
	c := &Client{connected: false, logger: zap.NewNop()}
	if err := c.Consume("hive.events", func([]byte) error { return nil }); err == nil {
		t.Fatal("expected Consume() to fail on a disconnected client")
	}
}

func TestCloseOnBareClientDoesNotPanic(t *testing.T) {
	c := &Client{connected: true, logger: zap.NewNop()}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on a client with no underlying connection returned error: %v", err)
	}
	if c.IsConnected() {
		t.Error("expected connected to be false after Close()")
	}
}
