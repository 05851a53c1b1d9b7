package domain

import "context"

// Repository is the persistence capability handed to rule handlers and used
// by hosts to commit dispatch results. Get fails with NotFoundError, Save
// with PersistenceError.
type Repository interface {
	Get(ctx context.Context, id string) (*Object, error)
	Save(ctx context.Context, obj *Object) error
}

// AssetLoader returns raw data assets by name. Callers parse the bytes.
// Unknown names fail with AssetNotFoundError.
type AssetLoader interface {
	LoadDataAsset(ctx context.Context, name string) ([]byte, error)
}
