package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCapabilities() []Capabilities {
	scoped := Capabilities{
		Filesystem: Filesystem{
			Mode:       FilesystemScoped,
			ReadPaths:  map[string]struct{}{"/ws/docs": {}},
			WritePaths: map[string]struct{}{"/ws/out": {}},
		},
		Network: Network{Mode: NetworkDomainAllowlist, Domains: map[string]struct{}{"a.example": {}}},
		Commands: Commands{
			Allowlist:           map[string]struct{}{"git": {}},
			RequireConfirmation: true,
		},
		UI: UI{StatusBar: true},
	}

	return []Capabilities{
		None(),
		WorkspaceRead(),
		WorkspaceReadWrite(),
		FirstParty(),
		scoped,
	}
}

func TestIsSubsetOfReflexive(t *testing.T) {
	for _, c := range sampleCapabilities() {
		assert.True(t, c.IsSubsetOf(c))
	}
}

func TestIsSubsetOfMergeUpperBound(t *testing.T) {
	caps := sampleCapabilities()
	for _, a := range caps {
		for _, b := range caps {
			m := Merge(a, b)
			assert.True(t, a.IsSubsetOf(m), "a not subset of merge(a,b)")
			assert.True(t, b.IsSubsetOf(m), "b not subset of merge(a,b)")
		}
	}
}

func TestIsSubsetOfTransitive(t *testing.T) {
	caps := sampleCapabilities()
	for _, a := range caps {
		for _, b := range caps {
			for _, c := range caps {
				if a.IsSubsetOf(b) && b.IsSubsetOf(c) {
					assert.True(t, a.IsSubsetOf(c), "subset relation not transitive")
				}
			}
		}
	}
}

func TestNoneIsAbsorbingAndIdentity(t *testing.T) {
	for _, c := range sampleCapabilities() {
		assert.True(t, None().IsSubsetOf(c))
		merged := Merge(None(), c)
		assert.True(t, merged.Equal(c))
	}
}

func TestMergeWidensFilesystemAndNetwork(t *testing.T) {
	a := WorkspaceRead()
	b := Capabilities{Network: Network{Mode: NetworkUnrestricted}}
	m := Merge(a, b)
	require.Equal(t, FilesystemWorkspaceRead, m.Filesystem.Mode)
	require.Equal(t, NetworkUnrestricted, m.Network.Mode)
}

func TestMergeCommandsRequireConfirmationIsAnd(t *testing.T) {
	a := Capabilities{Commands: Commands{RequireConfirmation: true}}
	b := Capabilities{Commands: Commands{RequireConfirmation: false}}
	m := Merge(a, b)
	assert.False(t, m.Commands.RequireConfirmation)
}

func TestPredicatesWorkspaceRead(t *testing.T) {
	c := WorkspaceRead()
	assert.True(t, c.CanRead("/ws/file.txt", "/ws"))
	assert.False(t, c.CanWrite("/ws/file.txt", "/ws"))
	assert.False(t, c.CanRead("/etc/passwd", "/ws"))
}

func TestPredicatesWorkspaceReadWrite(t *testing.T) {
	c := WorkspaceReadWrite()
	assert.True(t, c.CanRead("/ws/file.txt", "/ws"))
	assert.True(t, c.CanWrite("/ws/file.txt", "/ws"))
	assert.False(t, c.CanWrite("/outside/file.txt", "/ws"))
}

func TestPredicatesScopedTakesPrecedence(t *testing.T) {
	c := Capabilities{
		Filesystem: Filesystem{
			Mode:      FilesystemScoped,
			ReadPaths: map[string]struct{}{"/ws/docs": {}},
		},
	}
	assert.True(t, c.CanRead("/ws/docs/readme.md", "/ws"))
	assert.False(t, c.CanRead("/ws/src/main.go", "/ws"))
}

func TestHasReadWriteCapability(t *testing.T) {
	assert.False(t, None().HasReadCapability())
	assert.False(t, None().HasWriteCapability())

	assert.True(t, WorkspaceRead().HasReadCapability())
	assert.False(t, WorkspaceRead().HasWriteCapability())

	assert.True(t, WorkspaceReadWrite().HasReadCapability())
	assert.True(t, WorkspaceReadWrite().HasWriteCapability())

	scopedReadOnly := Capabilities{
		Filesystem: Filesystem{
			Mode:      FilesystemScoped,
			ReadPaths: map[string]struct{}{"/ws/docs": {}},
		},
	}
	assert.True(t, scopedReadOnly.HasReadCapability())
	assert.False(t, scopedReadOnly.HasWriteCapability())
}

func TestNetworkCanAccess(t *testing.T) {
	c := Capabilities{Network: Network{Mode: NetworkDomainAllowlist, Domains: map[string]struct{}{"a.example": {}}}}
	assert.True(t, c.NetworkCanAccess("a.example"))
	assert.False(t, c.NetworkCanAccess("b.example"))
	assert.False(t, None().NetworkCanAccess("a.example"))
}

func TestClassifyTier(t *testing.T) {
	assert.Equal(t, TierSandboxed, ClassifyTier(None()))
	assert.Equal(t, TierReadOnly, ClassifyTier(WorkspaceRead()))
	assert.Equal(t, TierReadWrite, ClassifyTier(WorkspaceReadWrite()))
	assert.Equal(t, TierFull, ClassifyTier(FirstParty()))
}
