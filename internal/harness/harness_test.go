package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testModels = filepath.Join("testdata", "models")

func TestRun_Testdata(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err)

		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_RelationshipMutators(t *testing.T) {
	scenario := &Scenario{
		Name:   "mutators",
		Models: testModels,
		Steps: []Step{
			{Op: OpPush, Payload: map[string]any{
				"user": []any{map[string]any{"id": "1", "name": "Ann"}},
				"post": []any{
					map[string]any{"id": "10", "title": "T"},
					map[string]any{"id": "11", "title": "U"},
				},
			}},
			{Op: OpAddToMany, Record: "user:1", Field: "posts", Target: "post:10"},
			{Op: OpSetOne, Record: "post:11", Field: "author", Target: "user:1"},
			{Op: OpRemoveFromMany, Record: "user:1", Field: "posts", Target: "post:10"},
		},
		Assertions: []Assertion{
			{Type: AssertHasMany, Record: "user:1", Field: "posts", Targets: []string{"post:11"}},
			{Type: AssertHasOne, Record: "post:11", Field: "author", Target: "user:1"},
			{Type: AssertHasOne, Record: "post:10", Field: "author"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Pass)

	// Mutators never reach the server.
	for _, e := range result.Trace {
		assert.NotEqual(t, "adapter", e.Op)
	}
	assert.Len(t, result.Trace, 4)
}

func TestRun_ClearOne(t *testing.T) {
	scenario := &Scenario{
		Name:   "clear_one",
		Models: testModels,
		Steps: []Step{
			{Op: OpPush, Payload: map[string]any{
				"user": []any{map[string]any{"id": "1", "posts": []any{"10"}}},
				"post": []any{map[string]any{"id": "10", "title": "T", "author": "1"}},
			}},
			{Op: OpClearOne, Record: "post:10", Field: "author"},
		},
		Assertions: []Assertion{
			{Type: AssertHasOne, Record: "post:10", Field: "author"},
			{Type: AssertHasMany, Record: "user:1", Field: "posts"},
			{Type: AssertQueuedCount, Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:   "unexpected",
		Models: testModels,
		Server: map[string]any{"user": []any{map[string]any{"id": "1", "name": "Ann"}}},
		Steps: []Step{
			{Op: OpFind, Type: "user", ID: "1"},
			{Op: OpSet, Record: "user:1", Field: "name", Value: "Bob"},
			{Op: OpUnload, Record: "user:1"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[2] (unload): unexpected error")

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, OpUnload, last.Op)
	assert.Equal(t, "DIRTY_UNLOAD", last.Error)
}

func TestRun_ExpectedErrorNotRaised(t *testing.T) {
	scenario := &Scenario{
		Name:   "no_error",
		Models: testModels,
		Server: map[string]any{"user": []any{map[string]any{"id": "1", "name": "Ann"}}},
		Steps: []Step{
			{Op: OpFind, Type: "user", ID: "1"},
			{Op: OpReload, Record: "user:1", ExpectError: "DIRTY_RELOAD"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error DIRTY_RELOAD, got success")
}

func TestRun_WrongErrorCode(t *testing.T) {
	scenario := &Scenario{
		Name:   "wrong_code",
		Models: testModels,
		Server: map[string]any{"user": []any{map[string]any{"id": "1", "name": "Ann"}}},
		Steps: []Step{
			{Op: OpFind, Type: "user", ID: "1"},
			{Op: OpSet, Record: "user:1", Field: "name", Value: "Bob"},
			{Op: OpUnload, Record: "user:1", ExpectError: "DIRTY_RELOAD"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error DIRTY_RELOAD, got DIRTY_UNLOAD")
}

func TestRun_UnknownAlias(t *testing.T) {
	scenario := &Scenario{
		Name:   "alias",
		Models: testModels,
		Steps: []Step{
			{Op: OpSave, Record: "@nope"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `unknown alias "@nope"`)
	// Scenario mistakes carry no store error code.
	assert.Empty(t, result.Trace[0].Error)
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:   "failed_assertion",
		Models: testModels,
		Server: map[string]any{"user": []any{map[string]any{"id": "1", "name": "Ann"}}},
		Steps: []Step{
			{Op: OpFind, Type: "user", ID: "1"},
		},
		Assertions: []Assertion{
			{Type: AssertAttribute, Record: "user:1", Field: "name", Value: "Bob"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: attribute user:1.name")
	assert.Contains(t, result.Errors[0], `Expected: "Bob"`)
	assert.Contains(t, result.Errors[0], `Actual: "Ann"`)
}

func TestRun_MissingModels(t *testing.T) {
	_, err := Run(&Scenario{Name: "x", Models: filepath.Join("testdata", "nope")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load models")
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "create_with_author.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
