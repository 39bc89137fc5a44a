//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
)

// InitializeContainer builds the container through Wire. The manual
// NewContainer in container.go composes the identical provider graph,
// so regenerating wire_gen.go is optional.
func InitializeContainer(ctx context.Context) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
