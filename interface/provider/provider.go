package provider

import (
	"context"

	"github.com/wekeo/hda-ingester/common"
)

// ProductProvider is the interface of a product download service
type ProductProvider interface {
	// Download a located product to the given localDir.
	// The file is written under the server-declared name (result.Filename)
	// and the path of the written file is returned.
	Download(ctx context.Context, result common.Result, localDir string) (string, error)

	// Name of the provider
	Name() string
}
