package mocks

import (
	"testing"

	"go.uber.org/mock/gomock"
)

// NewMockSignatureVerifierForTest creates a new mock SignatureVerifier for testing
func NewMockSignatureVerifierForTest(t *testing.T) *MockSignatureVerifier {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockSignatureVerifier(ctrl)
}

// NewMockUsageSourceForTest creates a new mock UsageSource for testing
func NewMockUsageSourceForTest(t *testing.T) *MockUsageSource {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockUsageSource(ctrl)
}

// NewMockDecisionPublisherForTest creates a new mock DecisionPublisher for testing
func NewMockDecisionPublisherForTest(t *testing.T) *MockDecisionPublisher {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockDecisionPublisher(ctrl)
}
