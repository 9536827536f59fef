package heartbeat

import (
	"context"
	"testing"
)

func TestIPRouteSrcRegex(t *testing.T) {
	out := "1.0.0.0 via 10.0.2.2 dev eth0 src 10.0.2.15 uid 0\n    cache"
	m := ipRouteSrcRe.FindStringSubmatch(out)
	if len(m) != 2 || m[1] != "10.0.2.15" {
		t.Fatalf("expected to extract src ip, got %v", m)
	}
}

func TestMacRouteInterfaceRegex(t *testing.T) {
	out := "   route to: default\ndestination: default\n    gateway: 10.0.0.1\n  interface: en0\n"
	m := macRouteInterfaceRe.FindStringSubmatch(out)
	if len(m) != 2 || m[1] != "en0" {
		t.Fatalf("expected to extract interface name, got %v", m)
	}
}

func TestDetectPrimaryIPNeverEmpty(t *testing.T) {
	ip := detectPrimaryIP(context.Background())
	if ip == "" {
		t.Fatal("detectPrimaryIP must never return empty string")
	}
}
