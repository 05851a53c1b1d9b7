package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"carerules/internal/transform"
	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

// Clock supplies timestamps for inserted and updated objects.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns the function's time, or the current UTC time when nil.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f()
}

// Service is the host around the engine: it loads references, simplifies,
// validates, dispatches and commits objects through the repository.
type Service struct {
	engine      *Engine
	transformer *transform.Transformer
	repo        domain.Repository
	assets      domain.AssetLoader

	logger       Logger
	metrics      MetricsRecorder
	tracer       Tracer
	clock        Clock
	blockAt      domain.Priority
	hydrateDepth int
	batchLimit   int
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the recorder for operation outcomes.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer wrapping each operation.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithBlockingPriority sets the lowest issue priority that rejects a commit.
func WithBlockingPriority(p domain.Priority) ServiceOption {
	return func(s *Service) { s.blockAt = p }
}

// WithHydrateDepth sets how many reference levels commits load before
// validation and dispatch.
func WithHydrateDepth(depth int) ServiceOption {
	return func(s *Service) {
		if depth >= 0 {
			s.hydrateDepth = depth
		}
	}
}

// WithBatchLimit bounds concurrent validations in ValidateBatch.
func WithBatchLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// NewService constructs a host service. A nil transformer selects the
// default catalog and depth.
func NewService(engine *Engine, tr *transform.Transformer, repo domain.Repository, assets domain.AssetLoader, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewEngine()
	}
	if tr == nil {
		tr = transform.New(engine.Catalog())
	}
	s := &Service{
		engine:       engine,
		transformer:  tr,
		repo:         repo,
		assets:       assets,
		logger:       noopLogger{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		clock:        ClockFunc(nil),
		blockAt:      domain.PriorityError,
		hydrateDepth: tr.MaxDepth(),
		batchLimit:   8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine { return s.engine }

// BlockingPriority returns the lowest issue priority that rejects a commit.
func (s *Service) BlockingPriority() domain.Priority { return s.blockAt }

// HydrateDepth returns the reference depth loaded before commits.
func (s *Service) HydrateDepth() int { return s.hydrateDepth }

// Capabilities returns the collaborators handed to every handler.
func (s *Service) Capabilities() ruleapi.Capabilities {
	return ruleapi.Capabilities{Repository: s.repo, Assets: s.assets}
}

// Outcome reports the result of a dispatch through the host.
type Outcome struct {
	// Object is the input when the chain left it untouched, otherwise the
	// expanded result.
	Object *domain.Object
	// Transformed is set when a handler returned a different view.
	Transformed bool
	// Mutated is set when the view's content changed, in place or not.
	Mutated bool
}

// Changed reports whether the chain altered the object in any way.
func (o Outcome) Changed() bool { return o.Transformed || o.Mutated }

func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error, attrs ...any) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn(op+" failed", append(attrs, "error", err)...)
	} else {
		s.logger.Debug(op+" completed", append(attrs, "duration", time.Since(start))...)
	}
	return err
}

// Hydrate returns a copy of obj with participation players and relationship
// targets loaded from the repository up to depth levels. References that do
// not resolve stay as raw keys.
func (s *Service) Hydrate(ctx context.Context, obj *domain.Object, depth int) (*domain.Object, error) {
	if obj == nil {
		return nil, fmt.Errorf("hydrate: object is nil")
	}
	var out *domain.Object
	err := s.observe(ctx, "hydrate", func(ctx context.Context) error {
		out = obj.Clone()
		if s.repo == nil {
			return nil
		}
		h := hydrator{repo: s.repo, loaded: make(map[string]*domain.Object)}
		if out.ID != "" {
			h.loaded[out.ID] = out
		}
		return h.resolve(ctx, out, depth)
	}, "type", obj.Type, "id", obj.ID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type hydrator struct {
	repo   domain.Repository
	loaded map[string]*domain.Object
}

func (h hydrator) resolve(ctx context.Context, obj *domain.Object, depth int) error {
	if depth <= 0 {
		return nil
	}
	for i := range obj.Participations {
		p := &obj.Participations[i]
		if p.Player == nil {
			ref, err := h.load(ctx, p.PlayerKey, depth)
			if err != nil {
				return err
			}
			p.Player = ref
		}
	}
	for i := range obj.Relationships {
		r := &obj.Relationships[i]
		if r.Target == nil {
			ref, err := h.load(ctx, r.TargetKey, depth)
			if err != nil {
				return err
			}
			r.Target = ref
		}
	}
	return nil
}

func (h hydrator) load(ctx context.Context, key string, depth int) (*domain.Object, error) {
	if key == "" {
		return nil, nil
	}
	if ref, ok := h.loaded[key]; ok {
		return ref, nil
	}
	ref, err := h.repo.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.loaded[key] = ref
	if err := h.resolve(ctx, ref, depth-1); err != nil {
		return nil, err
	}
	return ref, nil
}

// Validate simplifies obj and runs the validators registered for its type.
func (s *Service) Validate(ctx context.Context, obj *domain.Object) (domain.Issues, error) {
	var issues domain.Issues
	err := s.observe(ctx, "validate", func(ctx context.Context) error {
		v, err := s.transformer.Simplify(obj)
		if err != nil {
			return err
		}
		issues, err = s.engine.Validate(ctx, v.Type(), v, s.Capabilities())
		return err
	}, "type", typeOf(obj))
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// ValidateBatch validates independent objects concurrently. Results are
// positional; the first failure cancels the remaining validations.
func (s *Service) ValidateBatch(ctx context.Context, objs []*domain.Object) ([]domain.Issues, error) {
	out := make([]domain.Issues, len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)
	for i, obj := range objs {
		i, obj := i, obj
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			issues, err := s.Validate(gctx, obj)
			if err != nil {
				return fmt.Errorf("object %d: %w", i, err)
			}
			out[i] = issues
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply simplifies obj, runs the rule chain for its type and trigger and
// expands the result back to the object's type.
func (s *Service) Apply(ctx context.Context, trigger string, obj *domain.Object) (Outcome, error) {
	var out Outcome
	err := s.observe(ctx, "dispatch", func(ctx context.Context) error {
		v, err := s.transformer.Simplify(obj)
		if err != nil {
			return err
		}
		before, err := v.Fingerprint()
		if err != nil {
			return fmt.Errorf("fingerprint: %w", err)
		}
		result, err := s.engine.Dispatch(ctx, v.Type(), trigger, v, s.Capabilities())
		if err != nil {
			return err
		}
		out = Outcome{Object: obj, Transformed: result != v}
		after, err := result.Fingerprint()
		if err != nil {
			return fmt.Errorf("fingerprint: %w", err)
		}
		out.Mutated = !bytes.Equal(before, after)
		if !out.Changed() {
			return nil
		}
		out.Object, err = s.transformer.Expand(result, obj.Type)
		return err
	}, "type", typeOf(obj), "trigger", trigger)
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// Commit is the result of Insert or Update.
type Commit struct {
	Object *domain.Object
	Issues domain.Issues
}

// Insert persists a new object: hydrate, validate, BeforeInsert, save,
// AfterInsert, and save again when the After chain changed the object.
func (s *Service) Insert(ctx context.Context, obj *domain.Object) (Commit, error) {
	if obj == nil {
		return Commit{}, fmt.Errorf("insert: object is nil")
	}
	var res Commit
	err := s.observe(ctx, "insert", func(ctx context.Context) error {
		staged := obj.Clone()
		if staged.ID == "" {
			staged.ID = uuid.NewString()
		}
		now := s.clock.Now()
		if staged.CreatedAt.IsZero() {
			staged.CreatedAt = now
		}
		staged.UpdatedAt = now
		var err error
		res, err = s.commit(ctx, staged, ruleapi.BeforeInsert, ruleapi.AfterInsert)
		return err
	}, "type", obj.Type)
	return res, err
}

// Update persists changes to an existing object.
func (s *Service) Update(ctx context.Context, obj *domain.Object) (Commit, error) {
	if obj == nil || obj.ID == "" {
		return Commit{}, fmt.Errorf("update: object id required")
	}
	if s.repo == nil {
		return Commit{}, fmt.Errorf("update: no repository configured")
	}
	var res Commit
	err := s.observe(ctx, "update", func(ctx context.Context) error {
		existing, err := s.repo.Get(ctx, obj.ID)
		if err != nil {
			return err
		}
		staged := obj.Clone()
		if staged.CreatedAt.IsZero() {
			staged.CreatedAt = existing.CreatedAt
		}
		staged.UpdatedAt = s.clock.Now()
		res, err = s.commit(ctx, staged, ruleapi.BeforeUpdate, ruleapi.AfterUpdate)
		return err
	}, "type", obj.Type, "id", obj.ID)
	return res, err
}

func (s *Service) commit(ctx context.Context, staged *domain.Object, beforeTrigger, afterTrigger string) (Commit, error) {
	if s.repo == nil {
		return Commit{}, fmt.Errorf("commit: no repository configured")
	}
	hydrated, err := s.Hydrate(ctx, staged, s.hydrateDepth)
	if err != nil {
		return Commit{}, err
	}
	issues, err := s.Validate(ctx, hydrated)
	if err != nil {
		return Commit{}, err
	}
	if blocking := issues.AtOrAbove(s.blockAt); len(blocking) > 0 {
		return Commit{Issues: issues}, domain.IssueBlockError{Type: staged.Type, ID: staged.ID, Issues: blocking}
	}
	before, err := s.Apply(ctx, beforeTrigger, hydrated)
	if err != nil {
		return Commit{Issues: issues}, err
	}
	current := before.Object
	if err := s.repo.Save(ctx, current); err != nil {
		return Commit{Issues: issues}, err
	}
	after, err := s.Apply(ctx, afterTrigger, current)
	if err != nil {
		return Commit{Object: current, Issues: issues}, err
	}
	if after.Changed() {
		current = after.Object
		if err := s.repo.Save(ctx, current); err != nil {
			return Commit{Issues: issues}, err
		}
	}
	s.logger.Info("object committed", "type", current.Type, "id", current.ID, "issues", len(issues))
	return Commit{Object: current, Issues: issues}, nil
}

// Retrieve loads, hydrates and dispatches AfterRetrieve without saving.
func (s *Service) Retrieve(ctx context.Context, id string) (*domain.Object, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("retrieve: no repository configured")
	}
	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	hydrated, err := s.Hydrate(ctx, obj, s.hydrateDepth)
	if err != nil {
		return nil, err
	}
	out, err := s.Apply(ctx, ruleapi.AfterRetrieve, hydrated)
	if err != nil {
		return nil, err
	}
	return out.Object, nil
}

// Simplify exposes the transformer for hosts that dispatch views directly.
func (s *Service) Simplify(obj *domain.Object) (*view.View, error) {
	return s.transformer.Simplify(obj)
}

func typeOf(obj *domain.Object) string {
	if obj == nil {
		return ""
	}
	return obj.Type
}
