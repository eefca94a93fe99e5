package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamespaceString(t *testing.T) {
	ns := NewNamespace("warden")
	require.Equal(t, "warden", ns.String())

	extended := ns.Extend("tenant-a", "orders")
	require.Equal(t, "warden/tenant-a/orders", extended.String())

	// Extend must not mutate the receiver.
	require.Equal(t, "warden", ns.String())
}

func TestNamespaceKey(t *testing.T) {
	ns := NewNamespace("warden").Extend("tenant-a")
	k := ns.Key("order", "42")
	require.Equal(t, "warden/tenant-a/order/42", k.String())
}

func TestNamespacePrefix(t *testing.T) {
	ns := NewNamespace("warden").Extend("tenant-a")
	require.Equal(t, ns.String(), ns.Prefix())
}

func TestKeyEquality(t *testing.T) {
	ns := NewNamespace("warden")
	a := ns.Key("x")
	b := ns.Key("x")
	c := ns.Key("y")
	require.Equal(t, a.String(), b.String())
	require.NotEqual(t, a.String(), c.String())
}
