package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/codu-code/codu/internal/model"
)

func TestUserCreateAndLookup(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ada")

	if u.Role != model.RoleUser {
		t.Errorf("Expected default role USER, got %s", u.Role)
	}

	got, err := f.repos.Users.GetByUsername(f.ctx, "ada")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetByUsername returned %v, %v", got, err)
	}

	dup := &model.User{Username: "ada"}
	if err := f.repos.Users.Create(f.ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for duplicate username, got %v", err)
	}

	if err := f.repos.Users.UpdateProfile(f.ctx, u.ID, "Ada Lovelace", "Analyst"); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	got, _ = f.repos.Users.Get(f.ctx, u.ID)
	if got.Name != "Ada Lovelace" || got.Bio != "Analyst" {
		t.Errorf("Profile not updated: %+v", got)
	}

	if err := f.repos.Users.UpdateProfile(f.ctx, "missing", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUserUpsertKeepsRole(t *testing.T) {
	f := newFixture(t)

	u := &model.User{ID: "user_clerk_1", Username: "ada", Email: "ada@example.com"}
	if err := f.repos.Users.Upsert(f.ctx, u); err != nil {
		t.Fatalf("Upsert create failed: %v", err)
	}
	f.repos.Users.SetRole(f.ctx, u.ID, model.RoleAdmin)

	again := &model.User{ID: "user_clerk_1", Username: "ada2", Email: "new@example.com"}
	if err := f.repos.Users.Upsert(f.ctx, again); err != nil {
		t.Fatalf("Upsert update failed: %v", err)
	}
	got, _ := f.repos.Users.Get(f.ctx, u.ID)
	if got.Username != "ada2" || got.Email != "new@example.com" || got.Role != model.RoleAdmin {
		t.Errorf("Unexpected user after upsert: %+v", got)
	}
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ada")

	token, session, err := f.repos.Users.CreateSession(f.ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if token == "" || session.UserID != u.ID {
		t.Fatalf("Unexpected session %q %+v", token, session)
	}

	got, err := f.repos.Users.GetSession(f.ctx, token)
	if err != nil || got.UserID != u.ID {
		t.Fatalf("GetSession returned %v, %v", got, err)
	}

	if _, err := f.repos.Users.GetSession(f.ctx, "forged"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown token, got %v", err)
	}

	f.advance(time.Hour)
	if _, err := f.repos.Users.GetSession(f.ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired session to be rejected, got %v", err)
	}

	t2, _, _ := f.repos.Users.CreateSession(f.ctx, u.ID, time.Minute)
	f.advance(2 * time.Minute)
	n, err := f.repos.Users.PurgeExpiredSessions(f.ctx)
	if err != nil || n != 1 {
		t.Errorf("Expected 1 purged session, got %d, %v", n, err)
	}
	if _, err := f.repos.Users.GetSession(f.ctx, t2); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected purged session gone, got %v", err)
	}
}

func TestBanAndReports(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin")
	u := f.user(t, "spammer")
	token, _, _ := f.repos.Users.CreateSession(f.ctx, u.ID, time.Hour)

	if err := f.repos.Moderation.Ban(f.ctx, u.ID, admin.ID, "spam"); err != nil {
		t.Fatalf("Ban failed: %v", err)
	}
	banned, _ := f.repos.Moderation.IsBanned(f.ctx, u.ID)
	if !banned {
		t.Error("Expected user to be banned")
	}
	if _, err := f.repos.Users.GetSession(f.ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ban to drop sessions, got %v", err)
	}
	if err := f.repos.Moderation.Ban(f.ctx, u.ID, admin.ID, "again"); err != nil {
		t.Errorf("Expected repeated ban to succeed, got %v", err)
	}
	list, _ := f.repos.Moderation.Banned(f.ctx)
	if len(list) != 1 || list[0].Note != "again" {
		t.Errorf("Unexpected ban list %+v", list)
	}
	if err := f.repos.Moderation.Ban(f.ctx, "ghost", admin.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound banning unknown user, got %v", err)
	}

	if err := f.repos.Moderation.Unban(f.ctx, u.ID); err != nil {
		t.Fatalf("Unban failed: %v", err)
	}
	if err := f.repos.Moderation.Unban(f.ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second unban, got %v", err)
	}

	p := f.publish(t, u.ID, "Reported", f.now)
	rep := &model.Report{ReporterID: admin.ID, PostID: &p.ID, Reason: "spam"}
	if err := f.repos.Moderation.Report(f.ctx, rep); err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if rep.ID == 0 {
		t.Error("Expected report id")
	}
}
