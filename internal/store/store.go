package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"bookstore-service/internal/models"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetActiveBookByID retrieves a book that is purchasable (active flag set).
func (s *Store) GetActiveBookByID(ctx context.Context, id int64) (*models.Book, error) {
	var book models.Book
	err := s.db.GetContext(ctx, &book,
		"SELECT * FROM books WHERE id = $1 AND is_active = TRUE", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("Book not found.")
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBooksByIDs retrieves multiple books by IDs
func (s *Store) GetBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	if len(ids) == 0 {
		return []models.Book{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM books WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var books []models.Book
	err = s.db.SelectContext(ctx, &books, query, args...)
	return books, err
}

// GetAddressForUser retrieves an address owned by the given user. An address
// belonging to someone else is reported as not found, never as forbidden.
func (s *Store) GetAddressForUser(ctx context.Context, addressID, userID int64) (*models.Address, error) {
	var addr models.Address
	err := s.db.GetContext(ctx, &addr,
		"SELECT * FROM addresses WHERE id = $1 AND user_id = $2", addressID, userID)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("Address not found.")
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// GetUserByID retrieves the identity slice needed to address a shipment.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, username, email, phone, tax_id FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("User not found.")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetAddressByID retrieves an address without an ownership check. Used when
// rendering orders, where ownership was already established on the order row.
func (s *Store) GetAddressByID(ctx context.Context, addressID int64) (*models.Address, error) {
	var addr models.Address
	err := s.db.GetContext(ctx, &addr, "SELECT * FROM addresses WHERE id = $1", addressID)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("Address not found.")
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
