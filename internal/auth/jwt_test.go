package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}

	token, expiresAt, err := manager.GenerateClientToken("buddy-web")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("Expected expiry in an hour, got %v", expiresAt)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.ClientID != "buddy-web" {
		t.Errorf("Expected client ID buddy-web, got %s", claims.ClientID)
	}
	if claims.Role != RoleClient {
		t.Errorf("Expected role %s, got %s", RoleClient, claims.Role)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	manager, _ := NewTokenManager("test-secret", time.Hour)
	other, _ := NewTokenManager("other-secret", time.Hour)

	foreign, _, _ := other.GenerateClientToken("buddy-web")
	if _, err := manager.ValidateToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for a foreign signature, got %v", err)
	}

	if _, err := manager.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}

	expired, _ := NewTokenManager("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, _, _ := expired.GenerateClientToken("buddy-web")
	if _, err := manager.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for an expired token, got %v", err)
	}
}

func TestNewTokenManager(t *testing.T) {
	if _, err := NewTokenManager("", time.Hour); err == nil {
		t.Error("Expected error for empty secret")
	}

	manager, err := NewTokenManager("secret", 0)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}
	if manager.ttl != defaultTokenTTL {
		t.Errorf("Expected default ttl %v, got %v", defaultTokenTTL, manager.ttl)
	}
}
