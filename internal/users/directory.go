// Package users keeps accounts in the Users table of the registry
// spreadsheet.
package users

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"sheetboard/internal/apperr"
	"sheetboard/internal/auth"
	"sheetboard/internal/models"
	"sheetboard/internal/rowcodec"
	"sheetboard/internal/storage"
)

var validate = validator.New()

// Directory looks up and registers users.
type Directory struct {
	backend storage.Backend
	table   storage.TableRef
	admins  map[string]struct{}
	logger  *slog.Logger
}

// NewDirectory returns a directory over the given table. Signups whose email
// is listed in admins receive the Admin role.
func NewDirectory(backend storage.Backend, table storage.TableRef, admins []string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		if a = normalize(a); a != "" {
			set[a] = struct{}{}
		}
	}
	return &Directory{backend: backend, table: table, admins: set, logger: logger}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *Directory) list(ctx context.Context) ([]models.User, error) {
	created, err := d.backend.EnsureSheet(ctx, d.table, rowcodec.UserHeaders)
	if err != nil {
		return nil, apperr.Upstream(err, "Failed to read users")
	}
	if created {
		d.logger.Info("provisioned users sheet", slog.String("sheet", d.table.String()))
	}
	rows, err := d.backend.ReadRows(ctx, d.table, len(rowcodec.UserHeaders))
	if err != nil {
		return nil, apperr.Upstream(err, "Failed to read users")
	}
	return rowcodec.DecodeUsers(rows), nil
}

// Find returns the user registered under email.
func (d *Directory) Find(ctx context.Context, email string) (models.User, error) {
	users, err := d.list(ctx)
	if err != nil {
		return models.User{}, err
	}
	key := normalize(email)
	for _, u := range users {
		if normalize(u.Email) == key {
			return u, nil
		}
	}
	return models.User{}, apperr.NotFound("User not found")
}

// Register creates a user with a hashed password.
func (d *Directory) Register(ctx context.Context, email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.User{}, apperr.Invalid("Email and password are required.")
	}
	if err := validate.Var(email, "email"); err != nil {
		return models.User{}, apperr.Invalid("Email address is not valid.")
	}

	_, err := d.Find(ctx, email)
	switch {
	case err == nil:
		return models.User{}, apperr.Invalid("User already exists.")
	case !apperr.Is(err, apperr.KindNotFound):
		return models.User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, apperr.Invalid("Password cannot be used.")
	}
	u := models.User{Email: email, HashedPassword: hash, Role: models.RoleMember}
	if _, ok := d.admins[normalize(email)]; ok {
		u.Role = models.RoleAdmin
	}
	if err := d.backend.AppendRow(ctx, d.table, rowcodec.EncodeUser(u)); err != nil {
		return models.User{}, apperr.Upstream(err, "Failed to create user")
	}
	d.logger.Info("user registered", slog.String("email", u.Email), slog.String("role", string(u.Role)))
	return u, nil
}

// Authenticate checks credentials. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	if email == "" || password == "" {
		return models.User{}, apperr.Invalid("Email and password are required.")
	}
	u, err := d.Find(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return models.User{}, apperr.Unauthenticated("Invalid email or password")
	}
	if err != nil {
		return models.User{}, err
	}
	if !auth.CheckPassword(password, u.HashedPassword) {
		return models.User{}, apperr.Unauthenticated("Invalid email or password")
	}
	return u, nil
}
