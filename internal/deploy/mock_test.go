package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientDeploy(t *testing.T) {
	mock := NewMockClient(nil)
	assert.True(t, mock.Mock())
	assert.True(t, mock.Validate(context.Background()))

	first, err := mock.DeployStack(context.Background(), StackRequest{Name: "jellyfin", EndpointID: 1})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.StackID)

	second, err := mock.DeployStack(context.Background(), StackRequest{Name: "gitea", EndpointID: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, second.StackID, "stack ids are sequential")

	stacks := mock.ListStacks()
	require.Len(t, stacks, 2)
	assert.Equal(t, "jellyfin", stacks[0].Name)
	assert.Equal(t, "gitea", stacks[1].Name)
	assert.Equal(t, "running", stacks[0].Status)

	assert.Equal(t, 2, mock.Stats().TotalStacks)
}

func TestMockClientForceError(t *testing.T) {
	mock := NewMockClient(nil)
	mock.ForceError(1, "endpoint down")

	resp, err := mock.DeployStack(context.Background(), StackRequest{Name: "x", EndpointID: 1})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "endpoint down")
	assert.Empty(t, mock.ListStacks(), "failed deploys record no stack")

	// Other endpoints are unaffected.
	resp, err = mock.DeployStack(context.Background(), StackRequest{Name: "y", EndpointID: 2})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	// Clearing the forced error restores the endpoint.
	mock.ForceError(1, "")
	resp, err = mock.DeployStack(context.Background(), StackRequest{Name: "x", EndpointID: 1})
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestMockClientReset(t *testing.T) {
	mock := NewMockClient(nil)
	_, err := mock.DeployStack(context.Background(), StackRequest{Name: "a", EndpointID: 1})
	require.NoError(t, err)
	mock.ForceError(2, "boom")

	mock.Reset()
	assert.Empty(t, mock.ListStacks())
	assert.Equal(t, 0, mock.Stats().TotalStacks)

	resp, err := mock.DeployStack(context.Background(), StackRequest{Name: "b", EndpointID: 2})
	require.NoError(t, err)
	assert.True(t, resp.Success, "forced errors are cleared by reset")
	assert.Equal(t, 1, resp.StackID, "ids restart after reset")
}
