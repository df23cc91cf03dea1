// Package projects keeps the Projects table of the registry spreadsheet.
package projects

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sheetboard/internal/apperr"
	"sheetboard/internal/models"
	"sheetboard/internal/rowcodec"
	"sheetboard/internal/storage"
)

// Registry lists and creates projects. It performs no authorization.
type Registry struct {
	backend storage.Backend
	table   storage.TableRef
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewRegistry returns a registry over the given table, normally the
// Projects sheet of the registry spreadsheet.
func NewRegistry(backend storage.Backend, table storage.TableRef, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backend: backend,
		table:   table,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// ensure provisions the Projects sheet on first use. Two racing first calls
// may both try to create it; the loser only produces a duplicate sheet.
func (r *Registry) ensure(ctx context.Context) error {
	created, err := r.backend.EnsureSheet(ctx, r.table, rowcodec.ProjectHeaders)
	if err != nil {
		return apperr.Upstream(err, "Failed to fetch projects")
	}
	if created {
		r.logger.Info("provisioned projects sheet", slog.String("sheet", r.table.String()))
	}
	return nil
}

// ListAll returns every project in table order.
func (r *Registry) ListAll(ctx context.Context) ([]models.Project, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	rows, err := r.backend.ReadRows(ctx, r.table, len(rowcodec.ProjectHeaders))
	if err != nil {
		return nil, apperr.Upstream(err, "Failed to fetch projects")
	}
	projects := rowcodec.DecodeProjects(rows)
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

// ListForUser returns the projects created by email.
func (r *Registry) ListForUser(ctx context.Context, email string) ([]models.Project, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Project, 0, len(all))
	for _, p := range all {
		if strings.EqualFold(p.CreatedBy, email) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get returns the project with the given id.
func (r *Registry) Get(ctx context.Context, projectID string) (models.Project, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return models.Project{}, err
	}
	for _, p := range all {
		if p.ProjectID == projectID {
			return p, nil
		}
	}
	return models.Project{}, apperr.NotFound("Project not found")
}

// NewProject is the input of Create.
type NewProject struct {
	ProjectName   string
	Description   string
	LinkedSheetID string
	CreatedBy     string
}

// Create appends a project with a fresh id and creation time. Callers must
// have checked that the creator is an admin.
func (r *Registry) Create(ctx context.Context, in NewProject) (models.Project, error) {
	name := strings.TrimSpace(in.ProjectName)
	sheet := strings.TrimSpace(in.LinkedSheetID)
	if name == "" || sheet == "" {
		return models.Project{}, apperr.Invalid("Project name and linked sheet ID are required")
	}
	if err := r.ensure(ctx); err != nil {
		return models.Project{}, err
	}

	p := models.Project{
		ProjectID:     r.newID(),
		ProjectName:   name,
		Description:   in.Description,
		LinkedSheetID: sheet,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     r.now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.backend.AppendRow(ctx, r.table, rowcodec.EncodeProject(p)); err != nil {
		return models.Project{}, apperr.Upstream(err, "Failed to create project")
	}
	r.logger.Info("project created",
		slog.String("project", p.ProjectID),
		slog.String("sheet", p.LinkedSheetID),
		slog.String("by", p.CreatedBy))
	return p, nil
}
