// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests TXT records and service entry conversion
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Studio Mic",
		Port:        8928,
	})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.Feeds() == nil {
		t.Error("expected feeds channel")
	}
	mgr.Stop()
}

func TestTXTRecords(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		expected  []string
	}{
		{"without session", "", []string{"path=/levels"}},
		{"with session", "abc", []string{"path=/levels", "session=abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewManager(Config{SessionID: tt.sessionID})
			got := mgr.txtRecords()
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestFeedFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "Studio Mic._resonate-levels._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8928,
		InfoFields: []string{"path=/custom", "session=abc", "junk"},
	}

	feed := feedFromEntry(entry)
	if feed == nil {
		t.Fatal("expected a feed")
	}
	if feed.Name != "Studio Mic" {
		t.Errorf("expected name 'Studio Mic', got %q", feed.Name)
	}
	if feed.Addr() != "192.168.1.20:8928" {
		t.Errorf("expected addr 192.168.1.20:8928, got %s", feed.Addr())
	}
	if feed.Path != "/custom" || feed.SessionID != "abc" {
		t.Errorf("unexpected TXT parsing %+v", feed)
	}
}

func TestFeedFromEntryWithoutIPv4(t *testing.T) {
	if feedFromEntry(&mdns.ServiceEntry{Name: "x", Port: 1}) != nil {
		t.Error("expected nil for entry without IPv4 address")
	}
	if feedFromEntry(nil) != nil {
		t.Error("expected nil for nil entry")
	}
}
