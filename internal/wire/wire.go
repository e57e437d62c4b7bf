//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"
)

func InitializeApplication() (*Application, func(), error) {
	wire.Build(
		ApplicationSet,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}

func InitializeStore() (*Store, error) {
	wire.Build(
		StoreSet,
		wire.Struct(new(Store), "*"),
	)
	return nil, nil
}
