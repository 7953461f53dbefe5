package store

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"commerce-backend/internal/metadata"
)

// SeedUser is the superadmin created on first start.
type SeedUser struct {
	Email      string
	Password   string
	BcryptCost int
}

// Bootstrap creates the schema, the events table and, on an empty users
// table, the initial superadmin.
func (s *Store) Bootstrap(ctx context.Context, reg *metadata.Registry, seed SeedUser) error {
	if err := NewMigrator(s).MigrateAll(ctx, reg.AllEntities()); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, s.Dialect.EventsTableSQL()); err != nil {
		return fmt.Errorf("bootstrap events table: %w", err)
	}
	if err := s.seedSuperAdmin(ctx, seed); err != nil {
		return fmt.Errorf("seed superadmin: %w", err)
	}
	return nil
}

func (s *Store) seedSuperAdmin(ctx context.Context, seed SeedUser) error {
	if seed.Email == "" || seed.Password == "" {
		return nil
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	cost := seed.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), cost)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sql := fmt.Sprintf(
		"INSERT INTO users (email, password, role, first_name, last_name) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(seed.Email), pb.Add(string(hash)), pb.Add("SUPERADMIN"), pb.Add("Super"), pb.Add("Admin"),
	)
	if _, err := s.DB.ExecContext(ctx, sql, pb.Params()...); err != nil {
		return err
	}

	slog.Warn("default superadmin created, change the password immediately", "email", seed.Email)
	return nil
}
