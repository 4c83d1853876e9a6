package tautan

import "testing"

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"/items", "/items"},
		{"/items/42", "/items/:id"},
		{"/items/42/reviews/7", "/items/:id/reviews/:id"},
		{"/users/me", "/users/me"},
		{"/entities/8a1f2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d", "/entities/:id"},
		{"/messages/65f1c2e9a8b7d6c5e4f3a2b1", "/messages/:id"},
		{"/circles/cafe", "/circles/cafe"},
		{"/v2/items", "/v2/items"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := endpointLabel(tt.path); got != tt.expected {
				t.Errorf("endpointLabel(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
