package questions

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStaticBank_Draw(t *testing.T) {
	b := NewStaticBank(
		Question{ID: "a", Options: []string{"x"}},
		Question{ID: "b", Options: []string{"y"}},
	)
	qs, err := b.Draw(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, []string{"a", "b", "a"}, []string{qs[0].ID, qs[1].ID, qs[2].ID})

	// callers get their own option slices
	qs[0].Options[0] = "mutated"
	again, _ := b.Draw(context.Background(), 1)
	assert.Equal(t, "x", again[0].Options[0])
}

func TestStaticBank_DefaultsToBuiltin(t *testing.T) {
	qs, err := NewStaticBank().Draw(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "q1", qs[0].ID)
	assert.Equal(t, []string{"3", "4", "5"}, qs[0].Options)
}

func TestBuiltin_AnswersAreOptions(t *testing.T) {
	for _, q := range Builtin() {
		assert.Contains(t, q.Options, q.Answer, q.ID)
	}
}

func TestPostgresBank(t *testing.T) {
	dsn := os.Getenv("COURSECLASH_TEST_DSN")
	if dsn == "" {
		t.Skip("COURSECLASH_TEST_DSN not set")
	}
	b, err := OpenPostgres(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	require.NoError(t, b.db.Exec("DELETE FROM duel_questions").Error)
	require.NoError(t, b.Seed(ctx, Builtin()[:3]))
	require.NoError(t, b.Seed(ctx, Builtin()))

	qs, err := b.Draw(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, qs, 3)
	for _, q := range qs {
		assert.NotEmpty(t, q.ID)
		assert.Contains(t, q.Options, q.Answer)
	}
}
