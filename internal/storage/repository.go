// Package storage persists the per-user ledgers in SQLite. All collections
// are keyed by the owning user id; the balance engine never touches this
// package.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"messbook/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// User is an account that owns one mess ledger.
type User struct {
	ID           string
	Phone        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks database connectivity, for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateUser inserts a new account.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, phone, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Phone, u.Name, u.PasswordHash, u.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByPhone looks an account up by its login identifier.
func (r *SQLiteRepository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	return r.getUser(ctx, "SELECT id, phone, name, password_hash, created_at FROM users WHERE phone = ?", phone)
}

// GetUserByID looks an account up by id.
func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT id, phone, name, password_hash, created_at FROM users WHERE id = ?", id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query, arg string) (*User, error) {
	var u User
	var createdAt int64
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Phone, &u.Name, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// CreateMember inserts a member and their initial periods.
func (r *SQLiteRepository) CreateMember(ctx context.Context, userID string, m core.Member) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO members (id, user_id, name, created_at) VALUES (?, ?, ?, ?)",
		m.ID, userID, m.Name, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}

	if err := insertPeriods(ctx, tx, m.ID, m.Periods); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member: %w", err)
	}

	slog.InfoContext(ctx, "Member saved", "member_id", m.ID, "name", m.Name, "user_id", userID)
	return nil
}

// GetMember returns a single member with their period history.
func (r *SQLiteRepository) GetMember(ctx context.Context, userID, memberID string) (core.Member, error) {
	var m core.Member
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM members WHERE id = ? AND user_id = ?",
		memberID, userID,
	).Scan(&m.ID, &m.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, ErrNotFound
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("query member: %w", err)
	}

	periods, err := r.memberPeriods(ctx, memberID)
	if err != nil {
		return core.Member{}, err
	}
	m.Periods = core.NormalizePeriods(periods, time.Unix(createdAt, 0).UTC(), time.Time{})
	return m, nil
}

// ReplacePeriods rewrites a member's full interval history. Leave and rejoin
// both go through here so the stored list always satisfies the roster
// invariant checked by the caller.
func (r *SQLiteRepository) ReplacePeriods(ctx context.Context, memberID string, periods []core.Period) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM member_periods WHERE member_id = ?", memberID); err != nil {
		return fmt.Errorf("clear periods: %w", err)
	}
	if err := insertPeriods(ctx, tx, memberID, periods); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit periods: %w", err)
	}
	return nil
}

// DeleteMember removes a member, their periods, and every personal/payment
// transaction that targets them. Shared transactions are never touched by
// member removal.
func (r *SQLiteRepository) DeleteMember(ctx context.Context, userID, memberID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM members WHERE id = ? AND user_id = ?", memberID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	// Periods go with the member via FK cascade; targeted transactions are
	// removed explicitly so the cascade policy is visible here.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM transactions WHERE user_id = ? AND target_member_id = ?",
		userID, memberID,
	); err != nil {
		return fmt.Errorf("delete targeted transactions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member delete: %w", err)
	}

	slog.InfoContext(ctx, "Member deleted with targeted transactions", "member_id", memberID, "user_id", userID)
	return nil
}

// ListMembers returns the roster with period histories, oldest member first.
func (r *SQLiteRepository) ListMembers(ctx context.Context, userID string) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM members WHERE user_id = ? ORDER BY created_at, id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []core.Member
	var createdAts []int64
	for rows.Next() {
		var m core.Member
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
		createdAts = append(createdAts, createdAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	for i := range members {
		periods, err := r.memberPeriods(ctx, members[i].ID)
		if err != nil {
			return nil, err
		}
		// A member row without period rows is a legacy shape; synthesize one
		// open period starting at creation.
		members[i].Periods = core.NormalizePeriods(periods, time.Unix(createdAts[i], 0).UTC(), time.Time{})
	}
	return members, nil
}

func (r *SQLiteRepository) memberPeriods(ctx context.Context, memberID string) ([]core.Period, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT join_at, leave_at FROM member_periods WHERE member_id = ? ORDER BY join_at",
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer rows.Close()

	var periods []core.Period
	for rows.Next() {
		var joinAt int64
		var leaveAt sql.NullInt64
		if err := rows.Scan(&joinAt, &leaveAt); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		p := core.Period{Join: time.Unix(joinAt, 0).UTC()}
		if leaveAt.Valid {
			p.Leave = time.Unix(leaveAt.Int64, 0).UTC()
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func insertPeriods(ctx context.Context, tx *sql.Tx, memberID string, periods []core.Period) error {
	for _, p := range periods {
		var leaveAt any
		if !p.Open() {
			leaveAt = p.Leave.Unix()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO member_periods (member_id, join_at, leave_at) VALUES (?, ?, ?)",
			memberID, p.Join.Unix(), leaveAt,
		); err != nil {
			return fmt.Errorf("insert period: %w", err)
		}
	}
	return nil
}

// CreateTransaction appends a financial event to the user's ledger.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, userID string, t core.Transaction) error {
	var target any
	if t.TargetMemberID != "" {
		target = t.TargetMemberID
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO transactions (id, user_id, description, amount, kind, target_member_id, occurred_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, userID, t.Description, t.Amount, string(t.Kind), target, t.Date.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"transaction_id", t.ID,
		"kind", string(t.Kind),
		"amount", t.Amount,
		"user_id", userID)
	return nil
}

// DeleteTransaction removes one event from the ledger.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, txID string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE id = ? AND user_id = ?", txID, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTransactions returns the user's full log ordered by event date.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, description, amount, kind, target_member_id, occurred_at FROM transactions WHERE user_id = ? ORDER BY occurred_at, id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var kind string
		var target sql.NullString
		var occurredAt int64
		if err := rows.Scan(&t.ID, &t.Description, &t.Amount, &kind, &target, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = core.TransactionKind(kind)
		if target.Valid {
			t.TargetMemberID = target.String
		}
		t.Date = time.Unix(occurredAt, 0).UTC()
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Load fetches both collections the engine needs in one call.
func (r *SQLiteRepository) Load(ctx context.Context, userID string) ([]core.Member, []core.Transaction, error) {
	members, err := r.ListMembers(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	txns, err := r.ListTransactions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return members, txns, nil
}

// SaveInsight stores the latest generated annotation for a user.
func (r *SQLiteRepository) SaveInsight(ctx context.Context, userID, body string, generatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO insights (user_id, body, generated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET body = excluded.body, generated_at = excluded.generated_at`,
		userID, body, generatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save insight: %w", err)
	}
	return nil
}

// GetInsight returns the stored annotation and when it was generated.
func (r *SQLiteRepository) GetInsight(ctx context.Context, userID string) (string, time.Time, error) {
	var body string
	var generatedAt int64
	err := r.db.QueryRowContext(ctx,
		"SELECT body, generated_at FROM insights WHERE user_id = ?", userID).Scan(&body, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("query insight: %w", err)
	}
	return body, time.Unix(generatedAt, 0).UTC(), nil
}

// ListUserIDs returns every account id, for the worker's periodic refresh.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
