// Package seed creates the first staff (admin) profile on first boot when no
// admin exists yet.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/d9705996/clientportal/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminOptions configures the seed admin profile.
type AdminOptions struct {
	Email    string
	Password string    // if empty, a random password is generated
	Out      io.Writer // receives a generated password; required when Password is empty
}

// EnsureAdmin creates an admin profile if none exists. An existing profile
// with the seed email is promoted rather than duplicated. The function is
// idempotent and safe to call on every startup.
func EnsureAdmin(ctx context.Context, db *gorm.DB, opts AdminOptions, log *slog.Logger) error {
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if email == "" {
		return errors.New("seed admin email is required")
	}

	var admins int64
	if err := db.WithContext(ctx).Model(&model.User{}).Where("is_admin = ?", true).Count(&admins).Error; err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if admins > 0 {
		log.Debug("seed admin already exists")
		return nil
	}

	res := db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Update("is_admin", true)
	if res.Error != nil {
		return fmt.Errorf("promote seed admin: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Info("seed admin promoted", "email", email)
		return nil
	}

	password := opts.Password
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		if opts.Out != nil {
			// Shown exactly once; it is not logged.
			_, _ = fmt.Fprintf(opts.Out, "[clientportal] seed admin password: %s\n", password)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	u := &model.User{
		Email:        email,
		Name:         "Seed Admin",
		PasswordHash: string(hash),
		Lang:         "fr",
		IsAdmin:      true,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("insert seed admin: %w", err)
	}

	log.Info("seed admin created", "email", email)
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
