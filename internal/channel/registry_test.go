package channel

import (
	"context"
	"testing"
)

type stubAdapter struct {
	platform Platform
}

func (a stubAdapter) Type() Platform { return a.platform }

func (a stubAdapter) Descriptor() Descriptor {
	return Descriptor{Type: a.platform, DisplayName: string(a.platform)}
}

type stubSenderAdapter struct {
	stubAdapter
	sent []OutboundMessage
}

func (a *stubSenderAdapter) Send(_ context.Context, _ ChannelConfig, msg OutboundMessage) error {
	a.sent = append(a.sent, msg)
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(stubAdapter{platform: PlatformTelegram}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.Get(PlatformTelegram); !ok {
		t.Fatalf("expected adapter for %s", PlatformTelegram)
	}
	if _, ok := r.Get("  TELEGRAM "); !ok {
		t.Fatalf("expected normalized lookup to succeed")
	}
	if _, ok := r.Get(PlatformTwilio); ok {
		t.Fatalf("unexpected adapter for %s", PlatformTwilio)
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(stubAdapter{platform: PlatformTelegram}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(stubAdapter{platform: PlatformTelegram}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestRegistryRejectsNil(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatalf("expected nil adapter registration to fail")
	}
}

func TestRegistryCapabilityAccessors(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.MustRegister(&stubSenderAdapter{stubAdapter: stubAdapter{platform: PlatformWhatsAppCloud}})
	r.MustRegister(stubAdapter{platform: PlatformTelegram})

	if _, ok := r.GetSender(PlatformWhatsAppCloud); !ok {
		t.Fatalf("expected sender for %s", PlatformWhatsAppCloud)
	}
	if _, ok := r.GetSender(PlatformTelegram); ok {
		t.Fatalf("expected no sender for bare adapter")
	}
	if _, ok := r.GetReceiver(PlatformWhatsAppCloud); ok {
		t.Fatalf("expected no receiver for webhook-only adapter")
	}
	if _, ok := r.GetWebhookParser(PlatformWhatsAppCloud); ok {
		t.Fatalf("expected no webhook parser for stub adapter")
	}
}

func TestRegistryParsePlatform(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.MustRegister(stubAdapter{platform: PlatformDialog360})
	platform, err := r.ParsePlatform(" Dialog360 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if platform != PlatformDialog360 {
		t.Fatalf("expected %s, got %s", PlatformDialog360, platform)
	}
	if _, err := r.ParsePlatform("bogus"); err == nil {
		t.Fatalf("expected unknown platform to fail")
	}
}

func TestRegistryUnregister(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.MustRegister(stubAdapter{platform: PlatformTelegram})
	if !r.Unregister(PlatformTelegram) {
		t.Fatalf("expected unregister to succeed")
	}
	if r.Unregister(PlatformTelegram) {
		t.Fatalf("expected second unregister to fail")
	}
	if len(r.Types()) != 0 {
		t.Fatalf("expected empty registry, got %v", r.Types())
	}
}
