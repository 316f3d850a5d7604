package extraction

import (
	"context"
	"errors"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/clients"
	"crm-platform/internal/metrics"
	"crm-platform/internal/store"
	"crm-platform/pkg/logger"
	"crm-platform/pkg/validate"

	"github.com/google/uuid"
)

// ClientCreator is the part of the clients service Apply needs.
type ClientCreator interface {
	Create(ctx context.Context, workspaceID string, req clients.CreateRequest) (clients.Client, error)
}

// Slots caps concurrent runs per workspace.
type Slots interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// ErrBusy means the workspace already has the maximum number of runs in flight.
var ErrBusy = errors.New("extraction: too many concurrent runs")

type Service struct {
	repo      Repository
	extractor Extractor
	clients   ClientCreator
	activity  *audit.Service
	slots     Slots
	clock     func() time.Time
}

// NewService runs extractions with ex. A nil repo yields ErrNotConfigured.
func NewService(repo Repository, ex Extractor, cl ClientCreator, activity *audit.Service) *Service {
	if ex == nil {
		ex = NewHeuristicExtractor(nil)
	}
	return &Service{repo: repo, extractor: ex, clients: cl, activity: activity, clock: time.Now}
}

// WithSlots limits concurrent runs per workspace.
func (s *Service) WithSlots(slots Slots) *Service {
	s.slots = slots
	return s
}

// Run extracts fields from req.Text and stores the result.
func (s *Service) Run(ctx context.Context, workspaceID, userID string, req RunRequest) (Extraction, error) {
	if s.repo == nil {
		return Extraction{}, store.ErrNotConfigured
	}
	if workspaceID == "" || userID == "" {
		return Extraction{}, store.ErrInvalidArgument
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := validate.Struct(req); err != nil {
		return Extraction{}, err
	}

	if s.slots != nil {
		ok, err := s.slots.Acquire(ctx, workspaceID)
		if err != nil {
			return Extraction{}, err
		}
		if !ok {
			return Extraction{}, ErrBusy
		}
		defer func() {
			if err := s.slots.Release(context.WithoutCancel(ctx), workspaceID); err != nil {
				logger.From(ctx).Warn("extraction slot release failed", "err", err)
			}
		}()
	}

	var (
		fields []Field
		used   = s.extractor.Name()
		err    error
	)
	if c, ok := s.extractor.(Chain); ok {
		fields, used, err = c.run(ctx, req.Text)
	} else {
		fields, err = s.extractor.Extract(ctx, req.Text)
	}
	if err != nil {
		metrics.Extractions.WithLabelValues(used, "error").Inc()
		return Extraction{}, err
	}
	metrics.Extractions.WithLabelValues(used, "ok").Inc()
	if fields == nil {
		fields = []Field{}
	}

	e := Extraction{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		InputText:   req.Text,
		Fields:      fields,
		Extractor:   used,
		Status:      StatusCompleted,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		return Extraction{}, err
	}
	s.activity.Record(ctx, audit.Event{
		WorkspaceID: workspaceID,
		Type:        audit.EventExtractionRun,
		TargetType:  "extraction",
		TargetID:    e.ID,
		Metadata:    map[string]string{"extractor": used},
	})
	return s.repo.Get(ctx, workspaceID, e.ID)
}

func (s *Service) List(ctx context.Context, workspaceID string, limit int) ([]Extraction, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	if workspaceID == "" {
		return nil, store.ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, workspaceID, limit)
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (Extraction, error) {
	if s.repo == nil {
		return Extraction{}, store.ErrNotConfigured
	}
	if workspaceID == "" || id == "" {
		return Extraction{}, store.ErrInvalidArgument
	}
	return s.repo.Get(ctx, workspaceID, id)
}

// Apply creates a lead client from the best value of each field. Overrides win over
// extracted values. An extraction can be applied once.
func (s *Service) Apply(ctx context.Context, workspaceID, id string, req ApplyRequest) (clients.Client, error) {
	if s.repo == nil || s.clients == nil {
		return clients.Client{}, store.ErrNotConfigured
	}
	e, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return clients.Client{}, err
	}
	if e.Status == StatusApplied {
		return clients.Client{}, store.ErrConflict
	}
	value := func(name string) string {
		if v, ok := req.Overrides[name]; ok {
			return v
		}
		return e.Value(name)
	}
	create := clients.CreateRequest{
		CompanyName: value(FieldCompany),
		ContactName: value(FieldContact),
		Email:       value(FieldEmail),
		Phone:       value(FieldPhone),
		Website:     value(FieldWebsite),
		Status:      clients.StatusLead,
	}
	if cost := value(FieldCost); cost != "" {
		create.Notes = "Estimated cost: " + cost
	}
	if strings.TrimSpace(create.CompanyName) == "" {
		return clients.Client{}, errors.Join(store.ErrInvalidArgument, errors.New("no company name extracted"))
	}

	c, err := s.clients.Create(ctx, workspaceID, create)
	if err != nil {
		return clients.Client{}, err
	}
	if err := s.repo.MarkApplied(ctx, workspaceID, id, c.ID); err != nil {
		return clients.Client{}, err
	}
	return c, nil
}
