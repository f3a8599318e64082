package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/token"
)

// ErrInvalidTask is wrapped by every validation failure.
var ErrInvalidTask = errors.New("invalid task")

// IsInvalidTask returns true if err is or wraps ErrInvalidTask.
func IsInvalidTask(err error) bool {
	return errors.Is(err, ErrInvalidTask)
}

// serviceProviders maps a task service to the provider of its OAuth token.
var serviceProviders = map[string]string{
	"google": ir.ProviderGoogle,
	"github": ir.ProviderGitHub,
}

// CreateRequest is the payload of a task creation. Params carries the
// service the task belongs to and an optional OAuth access token.
type CreateRequest struct {
	Trigger      string            `json:"trigger"`
	TriggerArgs  []string          `json:"trigger_args"`
	ReactionName string            `json:"action_name"`
	ReactionArgs []string          `json:"action_params"`
	OwnerID      int64             `json:"user_id"`
	Params       map[string]string `json:"params"`
}

// ReplaceRequest overwrites every field of a task.
type ReplaceRequest struct {
	Trigger       string   `json:"trigger"`
	TriggerArgs   []string `json:"trigger_args"`
	ReactionName  string   `json:"action_name"`
	ReactionArgs  []string `json:"action_params"`
	OwnerID       int64    `json:"user_id"`
	Service       string   `json:"service"`
	OAuthToken    string   `json:"oauth_token"`
	RequiresOAuth bool     `json:"requires_oauth"`
}

// PatchRequest overwrites the fields that are set.
type PatchRequest struct {
	Trigger       *string   `json:"trigger,omitempty"`
	TriggerArgs   *[]string `json:"trigger_args,omitempty"`
	ReactionName  *string   `json:"action_name,omitempty"`
	ReactionArgs  *[]string `json:"action_params,omitempty"`
	OwnerID       *int64    `json:"user_id,omitempty"`
	Service       *string   `json:"service,omitempty"`
	OAuthToken    *string   `json:"oauth_token,omitempty"`
	RequiresOAuth *bool     `json:"requires_oauth,omitempty"`
}

// ServiceTask is a task handed to a service poller. Error is set instead of
// a usable OAuthToken when the token could not be produced.
type ServiceTask struct {
	ir.Task
	Error string `json:"error,omitempty"`
}

// Service is the task lifecycle service.
type Service struct {
	store   *store.Store
	catalog *catalog.Catalog
	tokens  *token.Manager
}

// New creates a Service. tokens may be nil, in which case stored tokens are
// handed out without refresh.
func New(s *store.Store, cat *catalog.Catalog, tokens *token.Manager) *Service {
	return &Service{store: s, catalog: cat, tokens: tokens}
}

// Create validates and stores a new task.
func (s *Service) Create(ctx context.Context, req CreateRequest) (ir.Task, error) {
	service := req.Params["service"]
	if service == "" {
		return ir.Task{}, fmt.Errorf("%w: service is required in params", ErrInvalidTask)
	}
	oauthToken := req.Params["oauth_token"]

	task := ir.Task{
		OwnerID:       req.OwnerID,
		Trigger:       req.Trigger,
		TriggerArgs:   req.TriggerArgs,
		ReactionName:  req.ReactionName,
		ReactionArgs:  req.ReactionArgs,
		Service:       service,
		RequiresOAuth: oauthToken != "",
		OAuthToken:    oauthToken,
	}
	if err := s.validate(ctx, &task); err != nil {
		return ir.Task{}, err
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return ir.Task{}, err
	}
	slog.Info("task created",
		"task_id", created.ID,
		"owner_id", created.OwnerID,
		"trigger", created.Trigger,
		"reaction", created.ReactionName,
		"service", created.Service,
	)
	return created, nil
}

// Replace overwrites every field of task id.
func (s *Service) Replace(ctx context.Context, id int64, req ReplaceRequest) (ir.Task, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return ir.Task{}, err
	}
	task := ir.Task{
		ID:            id,
		OwnerID:       req.OwnerID,
		Trigger:       req.Trigger,
		TriggerArgs:   req.TriggerArgs,
		ReactionName:  req.ReactionName,
		ReactionArgs:  req.ReactionArgs,
		Service:       req.Service,
		RequiresOAuth: req.RequiresOAuth,
		OAuthToken:    req.OAuthToken,
	}
	return s.update(ctx, task)
}

// Patch overwrites the fields of task id that req sets.
func (s *Service) Patch(ctx context.Context, id int64, req PatchRequest) (ir.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return ir.Task{}, err
	}
	if req.Trigger != nil {
		task.Trigger = *req.Trigger
	}
	if req.TriggerArgs != nil {
		task.TriggerArgs = *req.TriggerArgs
	}
	if req.ReactionName != nil {
		task.ReactionName = *req.ReactionName
	}
	if req.ReactionArgs != nil {
		task.ReactionArgs = *req.ReactionArgs
	}
	if req.OwnerID != nil {
		task.OwnerID = *req.OwnerID
	}
	if req.Service != nil {
		task.Service = *req.Service
	}
	if req.OAuthToken != nil {
		task.OAuthToken = *req.OAuthToken
	}
	if req.RequiresOAuth != nil {
		task.RequiresOAuth = *req.RequiresOAuth
	}
	return s.update(ctx, task)
}

func (s *Service) update(ctx context.Context, task ir.Task) (ir.Task, error) {
	if task.Service == "" {
		return ir.Task{}, fmt.Errorf("%w: service is required", ErrInvalidTask)
	}
	if err := s.validate(ctx, &task); err != nil {
		return ir.Task{}, err
	}
	updated, err := s.store.UpdateTask(ctx, task)
	if err != nil {
		return ir.Task{}, err
	}
	slog.Info("task updated", "task_id", updated.ID, "trigger", updated.Trigger, "reaction", updated.ReactionName)
	return updated, nil
}

// validate checks task against the catalog and the store and normalizes a
// directional trigger variant in place.
func (s *Service) validate(ctx context.Context, task *ir.Task) error {
	if task.Trigger == "" {
		return fmt.Errorf("%w: trigger is required", ErrInvalidTask)
	}
	if !s.catalog.HasReaction(task.ReactionName) {
		return fmt.Errorf("%w: invalid trigger or action name %q", ErrInvalidTask, task.ReactionName)
	}
	if _, err := s.catalog.BindReaction(task.ReactionName, task.ReactionArgs); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	if _, err := s.store.GetIdentity(ctx, task.OwnerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: user %d does not exist", ErrInvalidTask, task.OwnerID)
		}
		return err
	}

	task.Trigger, task.TriggerArgs = s.catalog.Normalize(task.Trigger, task.TriggerArgs)
	if task.TriggerArgs == nil {
		task.TriggerArgs = []string{}
	}
	if task.ReactionArgs == nil {
		task.ReactionArgs = []string{}
	}
	return nil
}

// Delete removes task id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	slog.Info("task deleted", "task_id", id)
	return nil
}

// Get returns task id.
func (s *Service) Get(ctx context.Context, id int64) (ir.Task, error) {
	return s.store.GetTask(ctx, id)
}

// ListForOwner returns the tasks of one identity.
func (s *Service) ListForOwner(ctx context.Context, ownerID int64) ([]ir.Task, error) {
	return s.store.ListTasksByOwner(ctx, ownerID)
}

// ListForService returns the tasks of service with fresh OAuth tokens
// attached. Per-task token problems are reported on the task and never
// fail the listing.
func (s *Service) ListForService(ctx context.Context, service string) ([]ServiceTask, error) {
	tasks, err := s.store.ListTasksByService(ctx, service)
	if err != nil {
		return nil, err
	}

	out := make([]ServiceTask, 0, len(tasks))
	for _, task := range tasks {
		item := ServiceTask{Task: task}
		if task.RequiresOAuth {
			if err := s.attachToken(ctx, &item); err != nil {
				item.Error = err.Error()
				slog.Warn("task token unavailable",
					"task_id", task.ID,
					"owner_id", task.OwnerID,
					"service", service,
					"error", err,
				)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) attachToken(ctx context.Context, item *ServiceTask) error {
	provider, ok := serviceProviders[item.Service]
	if !ok {
		return fmt.Errorf("service %q is not supported", item.Service)
	}

	tok, err := s.store.GetToken(ctx, item.OwnerID, provider)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user does not have a %s token", provider)
	}
	if err != nil {
		return err
	}

	if s.tokens != nil {
		if tok, err = s.tokens.EnsureFresh(ctx, tok); err != nil {
			return err
		}
	}

	if tok.AccessToken != item.OAuthToken {
		if err := s.store.SetTaskOAuthToken(ctx, item.ID, tok.AccessToken); err != nil {
			return err
		}
	}
	item.OAuthToken = tok.AccessToken
	return nil
}
