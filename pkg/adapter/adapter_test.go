package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ttsp.go/pkg/transport"
)

type nopOps struct{}

func (nopOps) Read(addr uint16, buf []byte) error   { return nil }
func (nopOps) Write(addr uint16, data []byte) error { return nil }

var _ Ops = &transport.Transport{}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("b", nopOps{}))
	require.NoError(t, r.Add(DefaultName, nopOps{}))
	require.True(t, errors.Is(r.Add("b", nopOps{}), ErrExists))
	require.Error(t, r.Add("", nopOps{}))
	require.Error(t, r.Add("c", nil))
	require.Equal(t, []string{"b", DefaultName}, r.Names())

	ops, err := r.Get("b")
	require.NoError(t, err)
	require.Equal(t, nopOps{}, ops)

	require.NoError(t, r.Del("b"))
	_, err = r.Get("b")
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, errors.Is(r.Del("b"), ErrNotFound))
	require.Equal(t, []string{DefaultName}, r.Names())
}

func TestZeroRegistry(t *testing.T) {
	var r Registry
	require.Empty(t, r.Names())
	require.NoError(t, r.Add("x", nopOps{}))
	require.Equal(t, []string{"x"}, r.Names())
}

func TestDefaultRegistry(t *testing.T) {
	tr := transport.New("dev", transport.ExchangeFunc(func([]transport.Segment) error { return nil }))
	require.NoError(t, Add("default-test", tr))
	defer Del("default-test")
	ops, err := Get("default-test")
	require.NoError(t, err)
	require.Same(t, tr, ops)
	require.Contains(t, Names(), "default-test")
}
