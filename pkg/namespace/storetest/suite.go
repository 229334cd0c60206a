// Package storetest is a reusable conformance suite for namespace.Store
// implementations. It exercises the interface contract, not implementation
// details, so the same suite validates the memory and Badger stores.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidrive/omnidrive/pkg/namespace"
)

// StoreTestSuite runs the namespace.Store contract tests against a store
// produced by NewStore.
type StoreTestSuite struct {
	// NewStore creates a fresh store for each test, ensuring isolation.
	// Cleanup is the caller's job (t.Cleanup or in-memory stores).
	NewStore func(t *testing.T) namespace.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Create", suite.testCreate)
	t.Run("Lookup", suite.testLookup)
	t.Run("Children", suite.testChildren)
	t.Run("Update", suite.testUpdate)
	t.Run("SubtreeMove", suite.testSubtreeMove)
	t.Run("SoftDelete", suite.testSoftDelete)
}

const ws = "ws-suite"

func newFolder(id, parentID, name, path string) *namespace.Node {
	now := time.Now()
	return &namespace.Node{
		ID:          id,
		WorkspaceID: ws,
		Name:        name,
		Type:        namespace.NodeFolder,
		VirtualPath: path,
		ParentID:    parentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newFile(id, parentID, name, path string) *namespace.Node {
	node := newFolder(id, parentID, name, path)
	node.Type = namespace.NodeFile
	node.ProviderID = "prov1"
	node.RemoteID = "remote-" + id
	node.Size = 42
	return node
}

func (suite *StoreTestSuite) testCreate(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, newFolder("d1", "", "docs", "/docs")))

	// A live node of the same type at the same path is a conflict.
	err := store.CreateNode(ctx, newFolder("d2", "", "docs", "/docs"))
	var conflict *namespace.ConflictError
	require.ErrorAs(t, err, &conflict)

	// Uniqueness is scoped per type: a file may share the folder's path.
	require.NoError(t, store.CreateNode(ctx, newFile("f1", "", "docs", "/docs")))
	err = store.CreateNode(ctx, newFile("f2", "", "docs", "/docs"))
	require.ErrorAs(t, err, &conflict)

	folder, err := store.GetNodeByPath(ctx, ws, "/docs", namespace.NodeFolder)
	require.NoError(t, err)
	assert.Equal(t, "d1", folder.ID)
	file, err := store.GetNodeByPath(ctx, ws, "/docs", namespace.NodeFile)
	require.NoError(t, err)
	assert.Equal(t, "f1", file.ID)

	// After soft delete the name is free again.
	require.NoError(t, store.SoftDelete(ctx, ws, "d1"))
	require.NoError(t, store.CreateNode(ctx, newFolder("d3", "", "docs", "/docs")))
}

func (suite *StoreTestSuite) testLookup(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, newFolder("d1", "", "docs", "/docs")))
	require.NoError(t, store.CreateNode(ctx, newFile("f1", "d1", "a.txt", "/docs/a.txt")))

	node, err := store.GetNodeByPath(ctx, ws, "/docs/a.txt", namespace.NodeFile)
	require.NoError(t, err)
	assert.Equal(t, "f1", node.ID)
	assert.Equal(t, "prov1", node.ProviderID)

	_, err = store.GetNodeByPath(ctx, ws, "/nope", namespace.NodeFile)
	assert.ErrorIs(t, err, namespace.ErrNodeNotFound)

	// Lookups are workspace-scoped.
	_, err = store.GetNode(ctx, "other-ws", "f1")
	assert.ErrorIs(t, err, namespace.ErrNodeNotFound)
}

func (suite *StoreTestSuite) testChildren(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, newFolder("d1", "", "docs", "/docs")))
	require.NoError(t, store.CreateNode(ctx, newFile("f2", "d1", "zebra.txt", "/docs/zebra.txt")))
	require.NoError(t, store.CreateNode(ctx, newFile("f1", "d1", "alpha.txt", "/docs/alpha.txt")))

	children, err := store.ListChildren(ctx, ws, "d1")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "alpha.txt", children[0].Name)
	assert.Equal(t, "zebra.txt", children[1].Name)

	// Roots list under the empty parent id.
	roots, err := store.ListChildren(ctx, ws, "")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "d1", roots[0].ID)
}

func (suite *StoreTestSuite) testUpdate(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, newFile("f1", "", "a.txt", "/a.txt")))

	node, err := store.GetNode(ctx, ws, "f1")
	require.NoError(t, err)
	node.Starred = true
	node.Size = 99
	require.NoError(t, store.UpdateNode(ctx, node))

	got, err := store.GetNode(ctx, ws, "f1")
	require.NoError(t, err)
	assert.True(t, got.Starred)
	assert.EqualValues(t, 99, got.Size)
	assert.Equal(t, "/a.txt", got.VirtualPath)
}

func (suite *StoreTestSuite) testSubtreeMove(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, newFolder("d1", "", "docs", "/docs")))
	require.NoError(t, store.CreateNode(ctx, newFolder("d2", "d1", "sub", "/docs/sub")))
	require.NoError(t, store.CreateNode(ctx, newFile("f1", "d2", "a.txt", "/docs/sub/a.txt")))
	require.NoError(t, store.CreateNode(ctx, newFolder("d3", "", "archive", "/archive")))

	require.NoError(t, store.UpdatePathAndDescendants(ctx, ws, "d1", "d3", "docs", "/archive/docs"))

	// Every descendant carries the rewritten prefix.
	node, err := store.GetNodeByPath(ctx, ws, "/archive/docs/sub/a.txt", namespace.NodeFile)
	require.NoError(t, err)
	assert.Equal(t, "f1", node.ID)

	_, err = store.GetNodeByPath(ctx, ws, "/docs/sub/a.txt", namespace.NodeFile)
	assert.ErrorIs(t, err, namespace.ErrNodeNotFound)

	// The moved node reparented.
	moved, err := store.GetNode(ctx, ws, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d3", moved.ParentID)

	children, err := store.ListChildren(ctx, ws, "d3")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "d1", children[0].ID)
}

func (suite *StoreTestSuite) testSoftDelete(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, newFolder("d1", "", "docs", "/docs")))
	require.NoError(t, store.CreateNode(ctx, newFile("f1", "d1", "a.txt", "/docs/a.txt")))

	require.NoError(t, store.SoftDelete(ctx, ws, "d1"))

	// Invisible to path lookups and listings.
	_, err := store.GetNodeByPath(ctx, ws, "/docs", namespace.NodeFolder)
	assert.ErrorIs(t, err, namespace.ErrNodeNotFound)
	_, err = store.GetNodeByPath(ctx, ws, "/docs/a.txt", namespace.NodeFile)
	assert.ErrorIs(t, err, namespace.ErrNodeNotFound)

	children, err := store.ListChildren(ctx, ws, "d1")
	require.NoError(t, err)
	assert.Empty(t, children)

	// Still fetchable by id, flagged deleted.
	node, err := store.GetNode(ctx, ws, "f1")
	require.NoError(t, err)
	assert.True(t, node.Deleted)
}
