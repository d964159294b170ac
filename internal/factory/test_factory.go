package factory

import (
	"context"
	"time"

	"github.com/mcoot/triviasync/internal/api/push"
	"github.com/mcoot/triviasync/internal/dependencies/mocks"
	"github.com/mcoot/triviasync/internal/services/generator"
	"github.com/mcoot/triviasync/internal/storage/memory"
	"github.com/mcoot/triviasync/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
// and the embedded question bank loaded
func NewTestApp() (*TestApp, error) {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	app := newWithDependencies(store, mockClock, mockRandom, nil, generator.DefaultConfig(), push.DefaultConfig(), testutil.NopLogger())
	if err := app.QuestionBank.LoadEmbedded(context.Background()); err != nil {
		return nil, err
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}, nil
}

// FinishGeneration advances the mock clock far enough for any pending
// question generation to complete
func (t *TestApp) FinishGeneration() {
	t.MockClock.Advance(time.Minute)
}
