package plan

import "context"

type Repository interface {
	Create(ctx context.Context, plan *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	GetBySlug(ctx context.Context, slug string) (*Plan, error)
	ListPublic(ctx context.Context) ([]*Plan, error)
	Update(ctx context.Context, plan *Plan) error
}
