package users

import (
	"context"
	"errors"
	"testing"

	"github.com/fastprodman/topupledger/internal/infra/pgtestutil"
	"github.com/fastprodman/topupledger/internal/repos/users"
	"github.com/google/uuid"
)

func TestUsers_Exists_TableDriven(t *testing.T) {
	t.Parallel()

	db, _, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	known := pgtestutil.InsertUser(t, db, pgtestutil.SeedUser{})
	repo := New(db)

	tests := []struct {
		name    string
		userID  uuid.UUID
		wantErr error
	}{
		{name: "user exists", userID: known, wantErr: nil},
		{name: "user not found", userID: uuid.New(), wantErr: users.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Exists(context.Background(), tt.userID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("unexpected error: got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
