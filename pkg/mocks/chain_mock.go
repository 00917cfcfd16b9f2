// Package mocks provides testify mocks for the abstract chain capabilities.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vaultbridge/txflow/pkg/chain"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, op chain.Operation) (chain.Handle, error) {
	args := m.Called(ctx, op)

	return args.Get(0).(chain.Handle), args.Error(1)
}

type MockConfirmationSource struct {
	mock.Mock
}

func (m *MockConfirmationSource) AwaitConfirmation(ctx context.Context, handle chain.Handle) (chain.Outcome, error) {
	args := m.Called(ctx, handle)

	return args.Get(0).(chain.Outcome), args.Error(1)
}

type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) Query(ctx context.Context, spec chain.QuerySpec) (any, error) {
	args := m.Called(ctx, spec)

	return args.Get(0), args.Error(1)
}

type MockStatusEndpoint struct {
	mock.Mock
}

func (m *MockStatusEndpoint) GetStatus(ctx context.Context, ref string) (string, error) {
	args := m.Called(ctx, ref)

	return args.String(0), args.Error(1)
}
