package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

func TestThreadRepositoryNextTurnIncrements(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewThreadRepository(db)
	mock.ExpectQuery("UPDATE threads").
		WithArgs("t-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"current_turn"}).AddRow(4))

	turn, err := repo.NextTurn(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("NextTurn() error = %v", err)
	}
	if turn != 4 {
		t.Errorf("turn = %d, want 4", turn)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestThreadRepositoryNextTurnEnsuresMissingThread(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewThreadRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE threads").
		WithArgs("t-new", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"current_turn"}))
	mock.ExpectExec("INSERT INTO threads").
		WithArgs("t-new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT thread_id, current_turn").
		WithArgs("t-new").
		WillReturnRows(sqlmock.NewRows([]string{"thread_id", "current_turn", "created_at", "updated_at"}).
			AddRow("t-new", 0, now, now))
	mock.ExpectQuery("UPDATE threads").
		WithArgs("t-new", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"current_turn"}).AddRow(1))

	turn, err := repo.NextTurn(context.Background(), "t-new")
	if err != nil {
		t.Fatalf("NextTurn() error = %v", err)
	}
	if turn != 1 {
		t.Errorf("turn = %d, want 1", turn)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestThreadRepositoryAppendMessageNullsEmptyToolFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewThreadRepository(db)
	mock.ExpectExec("INSERT INTO thread_messages").
		WithArgs("m-1", "t-1", string(domain.RoleUser), "hello", nil, nil, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.AppendMessage(context.Background(), domain.Message{
		ID:       "m-1",
		ThreadID: "t-1",
		Role:     domain.RoleUser,
		Content:  "hello",
		Turn:     2,
	})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestThreadRepositoryListRecentMessagesChronological(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewThreadRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "thread_id", "role", "content", "tool_name", "tool_call_id", "turn", "created_at"}).
		AddRow("m-2", "t-1", "assistant", "second", "", "", 1, now).
		AddRow("m-1", "t-1", "user", "first", "", "", 1, now.Add(-time.Minute))

	mock.ExpectQuery("FROM thread_messages").
		WithArgs("t-1", 10).
		WillReturnRows(rows)

	messages, err := repo.ListRecentMessages(context.Background(), "t-1", 10)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "first" || messages[1].Content != "second" {
		t.Errorf("messages not chronological: %q then %q", messages[0].Content, messages[1].Content)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestThreadRepositoryListRecentMessagesZeroLimit(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewThreadRepository(db)
	messages, err := repo.ListRecentMessages(context.Background(), "t-1", 0)
	if err != nil {
		t.Fatalf("ListRecentMessages() error = %v", err)
	}
	if messages != nil {
		t.Errorf("expected nil, got %v", messages)
	}
}
