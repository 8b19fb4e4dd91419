// Package service implements the session orchestration and provider
// management use cases on top of the ports and the container driver.
package service

import (
	"context"

	"github.com/Strob0t/Weaver/internal/adapter/docker"
	"github.com/Strob0t/Weaver/internal/domain/session"
)

// ContainerDriver is the container lifecycle surface the session services
// drive. *docker.Driver implements it.
type ContainerDriver interface {
	ContainerName(sessionID int64) string
	WorkspacePath(repoName string) string
	EditorEnabled() bool

	CreateContainer(ctx context.Context, sessionID int64) docker.CreateResult
	PrepareWorkspace(ctx context.Context, containerName string) docker.Result
	ClearWorkspace(ctx context.Context, containerName, repoName string) docker.Result
	WriteGitConfig(ctx context.Context, containerName, content string) docker.Result
	CloneRepository(ctx context.Context, containerName, repoURL, token, authUser, repoName string) docker.Result
	StartCodeServer(ctx context.Context, containerName, repoName string) docker.Result
	ResolveCodeServerPort(ctx context.Context, containerName string) (int, bool)

	GitStatus(ctx context.Context, containerName, repoName string) docker.Result
	GitCheckout(ctx context.Context, containerName, repoName, branch string) docker.Result
	GitPull(ctx context.Context, containerName, repoName, token, authUser string) docker.Result
	CurrentBranch(ctx context.Context, containerName, repoName string) docker.Result
	ListBranches(ctx context.Context, containerName, repoName string) docker.Result
	ListDirectories(ctx context.Context, containerName, repoName string) docker.Result

	ListSessionContainerStates(ctx context.Context) map[int64]session.ContainerState
	ListSessionContainers(ctx context.Context) ([]int64, docker.Result)
	ResolveContainerState(ctx context.Context, sessionID int64) (session.ContainerState, bool)
	StopContainer(ctx context.Context, sessionID int64) docker.Result
	StartContainer(ctx context.Context, sessionID int64) docker.Result
	RemoveContainer(ctx context.Context, sessionID int64) docker.Result
}

var _ ContainerDriver = (*docker.Driver)(nil)

// TokenCipher encrypts and decrypts provider access tokens.
// *provider.TokenCipher implements it.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(payload string) (string, error)
}
