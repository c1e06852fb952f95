package annotate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ctrise/grantmatch/internal/model"
	"github.com/ctrise/grantmatch/internal/resilience"
	"github.com/ctrise/grantmatch/pkg/anthropic"
)

type mockChat struct {
	mock.Mock
}

func (m *mockChat) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func fastRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

var grant = model.GrantCandidate{
	Title:   "Youth Success Fund",
	Sponsor: "Acme Foundation",
	Summary: "Supports college readiness programs for public high schools.",
}

func TestRationale_ReturnsTrimmedText(t *testing.T) {
	chat := &mockChat{}
	chat.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: "  Strong fit: the grant targets the same students.  "}},
		}, nil).Once()

	a := New(chat, "claude-haiku-4-5-20251001").WithRetry(fastRetry())
	got, err := a.Rationale(context.Background(), "mission", grant)
	require.NoError(t, err)
	assert.Equal(t, "Strong fit: the grant targets the same students.", got)
	chat.AssertExpectations(t)
}

func TestRationale_FailureIsAnnotationError(t *testing.T) {
	chat := &mockChat{}
	chat.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("invalid api key"))

	a := New(chat, "claude-haiku-4-5-20251001").WithRetry(fastRetry())
	_, err := a.Rationale(context.Background(), "mission", grant)
	assert.ErrorIs(t, err, model.ErrAnnotation)
}

func TestRationale_EmptyCompletionIsAnnotationError(t *testing.T) {
	chat := &mockChat{}
	chat.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{}, nil)

	a := New(chat, "claude-haiku-4-5-20251001").WithRetry(fastRetry())
	_, err := a.Rationale(context.Background(), "mission", grant)
	assert.ErrorIs(t, err, model.ErrAnnotation)
}

func TestAssessment_UsesLargerBudgetAndGrantFields(t *testing.T) {
	chat := &mockChat{}
	chat.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 800 && len(req.Messages) == 1
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "1. Mission alignment..."}},
	}, nil).Once()

	a := New(chat, "claude-sonnet-4-5-20250929").WithRetry(fastRetry())
	got, err := a.Assessment(context.Background(), "mission", grant)
	require.NoError(t, err)
	assert.Contains(t, got, "Mission alignment")
	chat.AssertExpectations(t)
}
