package main

// Provider blank imports. Each import activates a self-registering git
// provider API client.

import (
	_ "github.com/Strob0t/Weaver/internal/adapter/azuredevops"
	_ "github.com/Strob0t/Weaver/internal/adapter/github"
	_ "github.com/Strob0t/Weaver/internal/adapter/gitlab"
)
