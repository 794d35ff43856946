package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/spaceshipgen/comparator/internal/domain"
)

func appendEvents(t *testing.T, db *sql.DB, events ...domain.UploadEvent) {
	t.Helper()
	repo := &EventRepo{}
	for _, e := range events {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := repo.AppendTx(context.Background(), tx, e); err != nil {
			tx.Rollback()
			t.Fatalf("AppendTx seq=%d: %v", e.SeqNo, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
}

func TestEventRepo_ListSince(t *testing.T) {
	db := newTestDB(t)
	appendEvents(t, db,
		domain.UploadEvent{SessionID: "p1", SeqNo: 1, EventType: "upload_applied", PayloadJSON: `{"slots":[1]}`, CreatedAt: 100},
		domain.UploadEvent{SessionID: "p1", SeqNo: 2, EventType: "upload_rejected", PayloadJSON: `{"seed":"7"}`, CreatedAt: 101},
		domain.UploadEvent{SessionID: "p1", SeqNo: 3, EventType: "upload_applied", PayloadJSON: `{"slots":[2,3]}`, CreatedAt: 102},
		domain.UploadEvent{SessionID: "p2", SeqNo: 1, EventType: "upload_applied", PayloadJSON: `{"slots":[1]}`, CreatedAt: 100},
	)

	tests := []struct {
		since    int64
		wantSeqs []int64
	}{
		{0, []int64{1, 2, 3}},
		{1, []int64{2, 3}},
		{3, nil},
	}
	for _, tt := range tests {
		got, err := (&EventRepo{}).ListBySession(context.Background(), db, "p1", tt.since)
		if err != nil {
			t.Fatalf("ListBySession since=%d: %v", tt.since, err)
		}
		if len(got) != len(tt.wantSeqs) {
			t.Fatalf("since=%d: got %d events, want %d", tt.since, len(got), len(tt.wantSeqs))
		}
		for i, e := range got {
			if e.SeqNo != tt.wantSeqs[i] || e.SessionID != "p1" {
				t.Errorf("since=%d: event %d = %+v", tt.since, i, e)
			}
		}
	}

	got, _ := (&EventRepo{}).ListBySession(context.Background(), db, "p1", 1)
	if got[0].EventType != "upload_rejected" || got[0].PayloadJSON != `{"seed":"7"}` {
		t.Errorf("rejected event = %+v", got[0])
	}
	if got[1].CreatedAt != 102 {
		t.Errorf("CreatedAt = %d, want 102", got[1].CreatedAt)
	}
}

func TestEventRepo_SeqUniquePerSession(t *testing.T) {
	db := newTestDB(t)
	ev := domain.UploadEvent{SessionID: "p1", SeqNo: 1, EventType: "upload_applied", PayloadJSON: "{}", CreatedAt: 1}
	appendEvents(t, db, ev)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := (&EventRepo{}).AppendTx(context.Background(), tx, ev); err == nil {
		t.Error("expected error appending a repeated seq_no")
	}

	other := ev
	other.SessionID = "p2"
	if err := (&EventRepo{}).AppendTx(context.Background(), tx, other); err != nil {
		t.Errorf("same seq_no in another session: %v", err)
	}
}

func TestEventRepo_ListUnknownSession(t *testing.T) {
	db := newTestDB(t)
	got, err := (&EventRepo{}).ListBySession(context.Background(), db, "nobody", 0)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
