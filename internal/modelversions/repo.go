package modelversions

import "context"

// Repo persists model versions.
type Repo interface {
	Create(ctx context.Context, mv ModelVersion) error
	Get(ctx context.Context, id string) (ModelVersion, error)
	GetByName(ctx context.Context, name string) (ModelVersion, error)
	GetActive(ctx context.Context) (ModelVersion, error)
	// List returns every version ordered by DeployedAt ascending.
	List(ctx context.Context) ([]ModelVersion, error)
	// Activate marks id active and every other version inactive in one step.
	Activate(ctx context.Context, id string) (ModelVersion, error)
}
