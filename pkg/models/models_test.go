package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestUserRole constants
func TestUserRole_Constants(t *testing.T) {
	tests := []struct {
		name     string
		role     UserRole
		expected string
	}{
		{"rider role", RoleRider, "rider"},
		{"driver role", RoleDriver, "driver"},
		{"admin role", RoleAdmin, "admin"},
		{"vendor role", RoleVendor, "vendor"},
		{"dispatcher role", RoleDispatcher, "dispatcher"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.role) != tt.expected {
				t.Errorf("Role = %s, want %s", string(tt.role), tt.expected)
			}
		})
	}
}

// TestUser_JSON_Marshaling tests User JSON marshaling
func TestUser_JSON_Marshaling(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)
	profileImage := "https://example.com/image.jpg"

	user := User{
		ID:           userID,
		Email:        "test@example.com",
		PhoneNumber:  "+1234567890",
		PasswordHash: "hashed_password",
		FirstName:    "John",
		LastName:     "Doe",
		Role:         RoleDispatcher,
		IsActive:     true,
		IsVerified:   true,
		ProfileImage: &profileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Failed to marshal user: %v", err)
	}

	// Password should not be in JSON output
	if jsonContains(data, "hashed_password") {
		t.Error("PasswordHash should not be in JSON output")
	}

	// Other fields should be present
	if !jsonContains(data, "test@example.com") {
		t.Error("Email should be in JSON output")
	}
	if !jsonContains(data, "John") {
		t.Error("FirstName should be in JSON output")
	}
}

// TestUser_JSON_Unmarshaling tests User JSON unmarshaling
func TestUser_JSON_Unmarshaling(t *testing.T) {
	jsonData := `{
		"id": "550e8400-e29b-41d4-a716-446655440000",
		"email": "test@example.com",
		"phone_number": "+1234567890",
		"first_name": "John",
		"last_name": "Doe",
		"role": "vendor",
		"is_active": true,
		"is_verified": false
	}`

	var user User
	err := json.Unmarshal([]byte(jsonData), &user)
	if err != nil {
		t.Fatalf("Failed to unmarshal user: %v", err)
	}

	if user.Email != "test@example.com" {
		t.Errorf("Email = %s, want test@example.com", user.Email)
	}
	if user.Role != RoleVendor {
		t.Errorf("Role = %s, want vendor", user.Role)
	}
	if user.IsActive != true {
		t.Error("IsActive should be true")
	}
	if user.IsVerified != false {
		t.Error("IsVerified should be false")
	}
}

// TestUser_OptionalFields tests that nil optional fields are omitted
func TestUser_OptionalFields(t *testing.T) {
	user := User{
		ID:           uuid.New(),
		Email:        "test@example.com",
		PhoneNumber:  "+1234567890",
		FirstName:    "John",
		LastName:     "Doe",
		Role:         RoleDriver,
		ProfileImage: nil,
		DeletedAt:    nil,
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Failed to marshal user: %v", err)
	}

	if jsonContains(data, "profile_image") {
		t.Error("profile_image should be omitted when nil")
	}
	if jsonContains(data, "deleted_at") {
		t.Error("deleted_at should be omitted when nil")
	}
}

// TestUser_EmptyFields tests User with empty string fields
func TestUser_EmptyFields(t *testing.T) {
	user := User{
		ID:          uuid.New(),
		Email:       "",
		PhoneNumber: "",
		FirstName:   "",
		LastName:    "",
		Role:        "",
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Failed to marshal user with empty fields: %v", err)
	}

	if len(data) == 0 {
		t.Error("JSON output should not be empty")
	}
}

func BenchmarkUser_JSON_Marshal(b *testing.B) {
	user := User{
		ID:          uuid.New(),
		Email:       "test@example.com",
		PhoneNumber: "+1234567890",
		FirstName:   "John",
		LastName:    "Doe",
		Role:        RoleDriver,
		IsActive:    true,
		IsVerified:  true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		json.Marshal(user)
	}
}

// Helper function to check if JSON contains a string
func jsonContains(data []byte, substr string) bool {
	return json.Valid(data) && contains(string(data), substr)
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
