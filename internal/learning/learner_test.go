package learning

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/khanglvm/tetris/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s := storage.NewStorage(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, s.Init())
	t.Cleanup(func() { s.Close() })
	return s
}

func seedPattern(t *testing.T, s storage.Storage, pattern, template string, confidence float64) {
	t.Helper()
	_, created, err := s.ReinforcePattern(context.Background(), storage.LearnedPattern{
		Pattern:          pattern,
		ResponseTemplate: template,
		ConfidenceScore:  confidence,
		SuccessRate:      1,
		UsageCount:       1,
	}, nil)
	require.NoError(t, err)
	require.True(t, created)
}

func TestDerivePattern(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "hello there friend", want: "hello there"},
		{in: "  what   is the time ", want: "what is"},
		{in: "hello there", wantErr: true},
		{in: "hello", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := DerivePattern(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPattern)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordCreatesPattern(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	require.NoError(t, l.Record(ctx, "hello there friend", "Hi!"))

	p, err := s.GetPattern(ctx, "hello there")
	require.NoError(t, err)
	want := storage.LearnedPattern{
		Pattern:          "hello there",
		ResponseTemplate: "Hi!",
		ConfidenceScore:  0.5,
		SuccessRate:      1.0,
		UsageCount:       1,
	}
	if diff := cmp.Diff(want, *p, cmpopts.IgnoreFields(storage.LearnedPattern{}, "ID")); diff != "" {
		t.Errorf("pattern mismatch (-want +got):\n%s", diff)
	}

	turns, err := s.RecentTurns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hello there friend", turns[0].UserInput)
	assert.Equal(t, "Hi!", turns[0].SystemResponse)
	assert.Equal(t, ContextNormal, turns[0].Context)
}

func TestRecordTwiceIsIdempotentOnCreation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	require.NoError(t, l.Record(ctx, "play some jazz", "first reply"))
	require.NoError(t, l.Record(ctx, "play some rock", "second reply"))

	patterns, err := s.ListPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.EqualValues(t, 2, patterns[0].UsageCount)
	assert.Equal(t, 1.0, patterns[0].SuccessRate)
	assert.Equal(t, 0.5, patterns[0].ConfidenceScore, "static policy leaves confidence alone")
	assert.Equal(t, "first reply", patterns[0].ResponseTemplate, "template is never replaced")
}

func TestRecordShortUtteranceSkipsPattern(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	require.NoError(t, l.Record(ctx, "hello there", "Hi"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.Patterns)
	assert.EqualValues(t, 1, st.Turns)
}

func TestSuccessRateRunningMean(t *testing.T) {
	p := &storage.LearnedPattern{SuccessRate: 0.5, UsageCount: 2}
	reinforcer(DefaultOptions())(p)
	// (0.5*2 + 1) / 3
	assert.InDelta(t, 2.0/3.0, p.SuccessRate, 1e-9)
	assert.EqualValues(t, 3, p.UsageCount)
	assert.Equal(t, 0.0, p.ConfidenceScore)
}

func TestLookupThresholdIsStrict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	seedPattern(t, s, "turn on", "at threshold", 0.7)
	_, ok := l.Lookup(ctx, "turn on the lights")
	assert.False(t, ok, "confidence equal to the threshold is not enough")

	seedPattern(t, s, "the lights", "above threshold", 0.71)
	got, ok := l.Lookup(ctx, "turn on the lights")
	require.True(t, ok)
	assert.Equal(t, "above threshold", got)
}

func TestLookupPicksHighestConfidence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	seedPattern(t, s, "what is", "low", 0.8)
	seedPattern(t, s, "is the", "high", 0.95)

	got, ok := l.Lookup(ctx, "what is the weather")
	require.True(t, ok)
	assert.Equal(t, "high", got)

	_, ok = l.Lookup(ctx, "what")
	assert.False(t, ok, "utterance must contain the pattern, not the other way round")
}

// With the default static policy, patterns created by recording start at
// 0.5 and never change, so they are never retrievable.
func TestLearnedPatternsNeverRetrievableWithStaticPolicy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Record(ctx, "hello there friend", "Hi!"))
		_, ok := l.Lookup(ctx, "hello there friend")
		assert.False(t, ok)
	}

	p, err := s.GetPattern(ctx, "hello there")
	require.NoError(t, err)
	assert.EqualValues(t, 20, p.UsageCount)
	assert.Equal(t, 0.5, p.ConfidenceScore)
}

func TestTrackSuccessPolicy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	opts := DefaultOptions()
	opts.Policy = PolicyTrackSuccess
	opts.MinUsage = 3
	l := NewLearner(s, opts, nil)

	require.NoError(t, l.Record(ctx, "open the garage", "Opening garage"))
	require.NoError(t, l.Record(ctx, "open the garage", "Opening garage"))
	_, ok := l.Lookup(ctx, "open the garage")
	assert.False(t, ok, "below min usage")

	require.NoError(t, l.Record(ctx, "open the garage", "Opening garage"))
	got, ok := l.Lookup(ctx, "open the garage door")
	require.True(t, ok)
	assert.Equal(t, "Opening garage", got)
}

func TestDisabledLearning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)
	seedPattern(t, s, "good morning", "Morning!", 0.9)

	l.Disable()
	assert.False(t, l.IsEnabled())

	_, ok := l.Lookup(ctx, "good morning sunshine")
	assert.False(t, ok)

	require.NoError(t, l.Record(ctx, "tell me something", "ok"))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Patterns, "no new pattern while disabled")
	assert.EqualValues(t, 1, st.Turns, "turns are still logged")

	l.Enable()
	_, ok = l.Lookup(ctx, "good morning sunshine")
	assert.True(t, ok)
}

func TestSetEnabledPersistsPreference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	l := NewLearner(s, DefaultOptions(), nil)
	require.NoError(t, l.SetEnabled(ctx, false))

	v, err := s.GetPreference(ctx, PreferenceKey)
	require.NoError(t, err)
	assert.Equal(t, "false", v)

	fresh := NewLearner(s, DefaultOptions(), nil)
	assert.True(t, fresh.IsEnabled())
	fresh.LoadPreference(ctx)
	assert.False(t, fresh.IsEnabled())
}

func TestUnavailableStoreDegrades(t *testing.T) {
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	s := storage.NewStorage(filepath.Join(blocker, "x", "db.sqlite"), nil)
	require.Error(t, s.Init())

	l := NewLearner(s, DefaultOptions(), nil)
	_, ok := l.Lookup(ctx, "hello there friend")
	assert.False(t, ok)

	err := l.Record(ctx, "hello there friend", "Hi")
	assert.True(t, storage.IsUnavailable(err))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStatic, p)

	p, err = ParsePolicy("Track-Success")
	require.NoError(t, err)
	assert.Equal(t, PolicyTrackSuccess, p)

	_, err = ParsePolicy("bayesian")
	assert.Error(t, err)
}

func TestStatusAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	seedPattern(t, s, "high one", "x", 0.9)
	require.NoError(t, l.Record(ctx, "low one here", "y"))

	st, err := l.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Patterns)
	assert.EqualValues(t, 1, st.Retrievable)
	assert.EqualValues(t, 1, st.Turns)
	assert.Equal(t, PolicyStatic, st.Policy)

	n, err := l.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	st, err = l.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.Patterns)
	assert.EqualValues(t, 1, st.Turns, "clear keeps conversation memory")
}

func TestWriteExportAnonymized(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := NewLearner(s, DefaultOptions(), nil)

	require.NoError(t, l.Record(ctx, "call my sister", "Calling"))

	var buf bytes.Buffer
	require.NoError(t, l.WriteExport(ctx, &buf, 0, true))

	var doc Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.True(t, doc.Anonymized)
	require.Len(t, doc.Patterns, 1)
	require.Len(t, doc.Turns, 1)
	assert.Equal(t, hashText("call my"), doc.Patterns[0].Pattern)
	assert.Equal(t, hashText("call my sister"), doc.Turns[0].UserInput)
	assert.Len(t, doc.Turns[0].UserInput, 64)
	assert.NotContains(t, buf.String(), "sister")
}

func TestHashText(t *testing.T) {
	assert.Equal(t, "", hashText(""))
	assert.Equal(t, hashText("abc"), hashText("abc"))
	assert.NotEqual(t, hashText("abc"), hashText("abd"))
}
