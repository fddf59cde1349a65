package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    Step
		wantErr string
	}{
		{
			name: "task and args",
			raw:  map[string]any{"task": "echo", "args": map[string]any{"msg": "hi"}},
			want: Step{Task: "echo", Args: map[string]any{"msg": "hi"}},
		},
		{
			name: "task is trimmed",
			raw:  map[string]any{"task": "  echo\t"},
			want: Step{Task: "echo", Args: map[string]any{}},
		},
		{
			name: "extra keys ignored",
			raw:  map[string]any{"task": "echo", "note": "x"},
			want: Step{Task: "echo", Args: map[string]any{}},
		},
		{name: "not a mapping", raw: []any{"echo"}, wantErr: "mapping"},
		{name: "nil entry", raw: nil, wantErr: "mapping"},
		{name: "missing task", raw: map[string]any{"args": map[string]any{}}, wantErr: "task"},
		{name: "blank task", raw: map[string]any{"task": "   "}, wantErr: "task"},
		{name: "numeric task", raw: map[string]any{"task": 7}, wantErr: "task"},
		{name: "args not a mapping", raw: map[string]any{"task": "echo", "args": []any{1}}, wantErr: "args"},
		{name: "null args", raw: map[string]any{"task": "echo", "args": nil}, wantErr: "args"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := Normalize(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.Code(errors.ErrCodeStepInvalid))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, step)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
		return path
	}

	steps, err := Load(write("plan.json", `[{"task":"echo","args":{"msg":"hi"}}, 5]`))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	step, err := Normalize(steps[0])
	require.NoError(t, err)
	assert.Equal(t, "echo", step.Task)
	_, err = Normalize(steps[1])
	assert.Error(t, err, "malformed entries survive loading and fail at normalization")

	steps, err = Load(write("plan.yaml", "- task: summarize\n  args:\n    text: hello\n"))
	require.NoError(t, err)
	step, err = Normalize(steps[0])
	require.NoError(t, err)
	assert.Equal(t, Step{Task: "summarize", Args: map[string]any{"text": "hello"}}, step)

	_, err = Load(write("object.json", `{"task":"echo"}`))
	assert.ErrorIs(t, err, errors.Code(errors.ErrCodePlanInvalid))

	_, err = Load(write("broken.json", `[{`))
	assert.ErrorIs(t, err, errors.Code(errors.ErrCodeFileUnmarshal))

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, errors.Code(errors.ErrCodeFileNotFound))

	steps, err = Load(write("empty.json", `[]`))
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestDefault(t *testing.T) {
	steps := Default()
	require.Len(t, steps, 3)

	var tasks []string
	for _, raw := range steps {
		step, err := Normalize(raw)
		require.NoError(t, err)
		tasks = append(tasks, step.Task)
	}
	assert.Equal(t, []string{"legacy", "meta", "summarize"}, tasks)
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(Default())
	require.NoError(t, err)
	b, err := Fingerprint(Default())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Fingerprint(Default()[:2])
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
