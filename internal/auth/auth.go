package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/d9705996/clientportal/internal/model"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SessionCookie carries the access token for browser navigation.
const SessionCookie = "cp_session"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("email or password is incorrect")
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("an account already exists for this email")
	// ErrProfileNotFound is returned when no active profile matches.
	ErrProfileNotFound = errors.New("profile not found")
)

// ValidationError reports a rejected registration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// SetSessionCookie stores the access token in an HttpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(ttl),
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", HttpOnly: true, Expires: time.Unix(0, 0), MaxAge: -1})
}

// TokenFromRequest returns the bearer token, else the session cookie value.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Accounts manages password profiles.
type Accounts struct {
	db *gorm.DB
}

// NewAccounts creates an Accounts store.
func NewAccounts(db *gorm.DB) *Accounts { return &Accounts{db: db} }

// Registration is the input to Register.
type Registration struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"` //nolint:gosec // plaintext only in transit to bcrypt
	Name     string `validate:"max=120"`
	Lang     string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Register creates a non-admin profile.
func (a *Accounts) Register(ctx context.Context, reg Registration) (*model.User, error) {
	reg.Email = NormalizeEmail(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	if err := validate.Struct(reg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			msg := "is invalid"
			switch fe.Tag() {
			case "required":
				msg = "is required"
			case "email":
				msg = "must be a valid email address"
			case "min":
				msg = "must be at least " + fe.Param() + " characters"
			case "max":
				msg = "must be at most " + fe.Param() + " characters"
			}
			return nil, &ValidationError{Field: strings.ToLower(fe.Field()), Message: msg}
		}
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{Email: reg.Email, Name: reg.Name, PasswordHash: string(hash), Lang: reg.Lang}
	if u.Lang == "" {
		u.Lang = "fr"
	}
	err = a.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return u, nil
}

// Authenticate checks an email and password against an active profile.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	var u model.User
	err := a.db.WithContext(ctx).
		Where("email = ? AND deactivated_at IS NULL", NormalizeEmail(email)).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// Profile loads an active profile by id.
func (a *Accounts) Profile(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := a.db.WithContext(ctx).Where("id = ? AND deactivated_at IS NULL", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &u, nil
}

// IsAdmin reports the admin flag of a profile. Unknown profiles are an error.
func (a *Accounts) IsAdmin(ctx context.Context, id string) (bool, error) {
	u, err := a.Profile(ctx, id)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// SetAdmin flips the admin flag for the profile with email. It is the
// operator path; no request handler calls it.
func (a *Accounts) SetAdmin(ctx context.Context, email string, admin bool) error {
	res := a.db.WithContext(ctx).Model(&model.User{}).
		Where("email = ?", NormalizeEmail(email)).
		Updates(map[string]any{"is_admin": admin, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}
