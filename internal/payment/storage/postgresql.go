package storage

import (
	"database/sql"
	"fmt"

	"aaroh-orders/internal/config"
	"aaroh-orders/internal/logger"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

func NewPostgreSQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*PostgreSQLStore, error) {
	log.LogDatabase("CONNECT", "postgresql", fmt.Sprintf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port))

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgreSQLStore{db: db, log: log}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment_attempts table: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment_attempts table: %w", err)
	}

	log.LogDatabase("SUCCESS", "postgresql", "Payment attempt audit store ready")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "postgresql", "Creating payment_attempts table if not exists")

	attemptsQuery := `
    CREATE TABLE IF NOT EXISTS payment_attempts (
        id VARCHAR(36) PRIMARY KEY,
        order_id VARCHAR(36) NOT NULL,
        gateway_order_id VARCHAR(64),
        payment_id VARCHAR(64),
        actor_email VARCHAR(255),
        outcome VARCHAR(50) NOT NULL,
        detail TEXT,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(attemptsQuery); err != nil {
		return fmt.Errorf("failed to create payment_attempts table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payment_attempts_order_id ON payment_attempts(order_id);",
		"CREATE INDEX IF NOT EXISTS idx_payment_attempts_outcome ON payment_attempts(outcome);",
		"CREATE INDEX IF NOT EXISTS idx_payment_attempts_created_at ON payment_attempts(created_at);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (s *PostgreSQLStore) RecordAttempt(attempt *Attempt) error {
	query := `
    INSERT INTO payment_attempts (
        id, order_id, gateway_order_id, payment_id, actor_email, outcome, detail, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	_, err := s.db.Exec(query,
		attempt.ID,
		attempt.OrderID,
		attempt.GatewayOrderID,
		attempt.PaymentID,
		attempt.ActorEmail,
		attempt.Outcome,
		attempt.Detail,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record payment attempt: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) ListAttemptsByOrder(orderID string, limit int) ([]*Attempt, error) {
	query := `
    SELECT id, order_id, gateway_order_id, payment_id, actor_email, outcome, detail, created_at
    FROM payment_attempts
    WHERE order_id = $1
    ORDER BY created_at DESC
    LIMIT $2
    `

	rows, err := s.db.Query(query, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.OrderID, &a.GatewayOrderID, &a.PaymentID,
			&a.ActorEmail, &a.Outcome, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

func (s *PostgreSQLStore) Close() error {
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
