package azuredevops

import (
	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/port/gitprovider"
)

func init() {
	gitprovider.Register(provider.TypeAzureDevOps, func(cfg gitprovider.Config) (gitprovider.Client, error) {
		return NewClient(cfg), nil
	})
}
