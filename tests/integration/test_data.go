package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/marenbeck/gatehouse/internal/models"
	"github.com/marenbeck/gatehouse/internal/repositories"
)

var userSeq atomic.Int64

// CreateTestUser inserts an active user with a unique email.
func CreateTestUser(t *testing.T, users *repositories.UserRepository) *models.User {
	t.Helper()

	n := userSeq.Add(1)
	user, err := users.Create(context.Background(), &models.User{
		Email: fmt.Sprintf("user%d@example.com", n),
		Name:  fmt.Sprintf("Test User %d", n),
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestProfile inserts an auth profile for the user.
func CreateTestProfile(t *testing.T, profiles *repositories.AuthProfileRepository, userID, passwordHash string) *models.UserAuthProfile {
	t.Helper()

	profile, err := profiles.Create(context.Background(), &models.UserAuthProfile{
		UserID:       userID,
		PasswordHash: passwordHash,
	})
	if err != nil {
		t.Fatalf("failed to create test profile: %v", err)
	}
	return profile
}

// CapturingMailer records every send and the template data, so tests can
// pull codes and links out of "delivered" mail.
type CapturingMailer struct {
	To       []string
	Template []string
	Data     []map[string]string
}

func (m *CapturingMailer) Send(ctx context.Context, to, template string, data map[string]string) error {
	m.To = append(m.To, to)
	m.Template = append(m.Template, template)
	m.Data = append(m.Data, data)
	return nil
}

// LastData returns the template data of the most recent send.
func (m *CapturingMailer) LastData(t *testing.T) map[string]string {
	t.Helper()
	if len(m.Data) == 0 {
		t.Fatal("no mail was sent")
	}
	return m.Data[len(m.Data)-1]
}
