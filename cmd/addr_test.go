package cmd

import "testing"

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"loopback with port", "127.0.0.1:3400", false},
		{"localhost", "localhost:8080", false},
		{"port only", ":8080", false},
		{"auto-assign port", "127.0.0.1:0", false},
		{"ipv6", "[::1]:3400", false},
		{"hostname", "example.internal:3400", false},
		{"missing port", "127.0.0.1", true},
		{"non-numeric port", "127.0.0.1:http", true},
		{"port out of range", "127.0.0.1:70000", true},
		{"whitespace host", "bad host:8080", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}
