package service

import (
	"context"

	"github.com/clinicflow/clinicflow/internal/api/dto"
	"github.com/clinicflow/clinicflow/internal/cache"
	"github.com/clinicflow/clinicflow/internal/domain/plan"
	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/samber/lo"
)

type PlanService interface {
	ListPublicPlans(ctx context.Context) (*dto.ListPlansResponse, error)
	GetPlanBySlug(ctx context.Context, slug string) (*dto.PlanResponse, error)
	GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error)
	CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error)
	UpdatePlan(ctx context.Context, id string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error)
}

type planService struct {
	ServiceParams
}

func NewPlanService(params ServiceParams) PlanService {
	return &planService{ServiceParams: params}
}

func (s *planService) ListPublicPlans(ctx context.Context) (*dto.ListPlansResponse, error) {
	key := cache.GenerateKey(cache.PrefixPublicPlan, "all")
	if cached, ok := s.Cache.Get(ctx, key); ok {
		if plans, ok := cached.([]*plan.Plan); ok {
			return planList(plans), nil
		}
	}

	plans, err := s.PlanRepo.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, plans, 0)
	return planList(plans), nil
}

func (s *planService) GetPlanBySlug(ctx context.Context, slug string) (*dto.PlanResponse, error) {
	key := cache.GenerateKey(cache.PrefixPlan, "slug", slug)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		if p, ok := cached.(*plan.Plan); ok {
			return &dto.PlanResponse{Plan: p}, nil
		}
	}

	p, err := s.PlanRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ierr.NewError("plan is inactive").
			WithHintf("Plan %s not found", slug).
			Mark(ierr.ErrNotFound)
	}
	s.Cache.Set(ctx, key, p, 0)
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error) {
	p, err := getCachedPlan(ctx, s.ServiceParams, id)
	if err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) CreatePlan(ctx context.Context, req dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPlan(ctx)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.PlanRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.Cache.DeleteByPrefix(ctx, cache.PrefixPublicPlan)

	s.Logger.Infow("created plan", "plan_id", p.ID, "slug", p.Slug)
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) UpdatePlan(ctx context.Context, id string, req dto.UpdatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(ctx, p)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.PlanRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	// every cached view of the catalog may hold the old row
	s.Cache.DeleteByPrefix(ctx, cache.PrefixPlan)
	s.Cache.DeleteByPrefix(ctx, cache.PrefixPublicPlan)

	s.Logger.Infow("updated plan", "plan_id", p.ID, "slug", p.Slug)
	return &dto.PlanResponse{Plan: p}, nil
}

// getCachedPlan is the read path the ledgers use to look up pricing and limits
func getCachedPlan(ctx context.Context, params ServiceParams, id string) (*plan.Plan, error) {
	key := cache.GenerateKey(cache.PrefixPlan, id)
	if cached, ok := params.Cache.Get(ctx, key); ok {
		if p, ok := cached.(*plan.Plan); ok {
			return p, nil
		}
	}

	p, err := params.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	params.Cache.Set(ctx, key, p, 0)
	return p, nil
}

func planList(plans []*plan.Plan) *dto.ListPlansResponse {
	items := lo.Map(plans, func(p *plan.Plan, _ int) *dto.PlanResponse {
		return &dto.PlanResponse{Plan: p}
	})
	resp := types.NewListResponse(items, len(items), len(items), 0)
	return &resp
}
