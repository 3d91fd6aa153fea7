package models

import (
	"encoding/json"
	"testing"
)

func TestIsValidStatus(t *testing.T) {
	valid := []AccountStatus{
		StatusNew, StatusActive, StatusUnauthorized, StatusBanned,
		StatusExpired, StatusError, StatusCodeError, StatusFloodWait,
		StatusRecoveryNeeded,
	}
	for _, status := range valid {
		if !IsValidStatus(status) {
			t.Errorf("Expected %s to be a valid status", status)
		}
	}

	if IsValidStatus("") {
		t.Error("Empty status should not be valid")
	}
	if IsValidStatus("suspended") {
		t.Error("Unknown status should not be valid")
	}
}

func TestIsHealthy(t *testing.T) {
	if !IsHealthy(StatusActive) {
		t.Error("Active should be healthy")
	}
	for _, status := range []AccountStatus{StatusNew, StatusBanned, StatusExpired, StatusError, StatusFloodWait} {
		if IsHealthy(status) {
			t.Errorf("Expected %s to be unhealthy", status)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusBanned) {
		t.Error("Banned should be terminal")
	}
	if IsTerminal(StatusExpired) {
		t.Error("Expired should not be terminal, recovery is possible")
	}
}

func TestProxyConfigSerialization(t *testing.T) {
	proxy := ProxyConfig{
		Kind:       "http",
		Address:    "1.1.1.1",
		Port:       80,
		ReverseDNS: true,
	}

	data, err := json.Marshal(proxy)
	if err != nil {
		t.Fatalf("Failed to marshal ProxyConfig: %v", err)
	}

	var decoded ProxyConfig
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal ProxyConfig: %v", err)
	}

	if decoded != proxy {
		t.Errorf("Expected %+v, got %+v", proxy, decoded)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	for _, field := range []string{"kind", "address", "port", "rdns"} {
		if _, exists := raw[field]; !exists {
			t.Errorf("Required field %s missing from JSON", field)
		}
	}
}
