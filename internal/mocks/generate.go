// Package mocks provides mock implementations for testing the mirror services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the port interfaces in internal/core. To regenerate after interface changes:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	chainMock := mocks.NewMockChainReader(ctrl)
//	chainMock.EXPECT().BountyCount(gomock.Any()).Return(int64(3), nil)
package mocks

// Generate mocks for the port interfaces from internal/core.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/verdikta/verdikta-applications-sub002/internal/core Store,ChainReader,EvaluationReader,ReceiptReader,Pinner,MetadataFetcher
