package registry

import (
	"context"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/orchcore/internal/task"
)

type echoArgs struct {
	Message string `json:"message"`
}

type echoHandler struct {
	name string
}

func newEchoHandler(name string) *echoHandler {
	return &echoHandler{name: name}
}

func (h *echoHandler) Name() string        { return h.name }
func (h *echoHandler) Description() string { return "echoes its message argument" }
func (h *echoHandler) Schema() *jsonschema.Schema {
	return NewHandlerSchema[echoArgs]()
}

func (h *echoHandler) Invoke(ctx context.Context, args map[string]any, execCtx ExecContext) task.StepResult {
	msg, _ := args["message"].(string)
	return task.StepResult{Success: true, Output: msg}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()
	r := New(nil)

	r.Register(newEchoHandler("echo"))

	h, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", h.Name())
	assert.True(t, r.Has("echo"))
	assert.False(t, r.Has("missing"))
}

func TestRegistry_Register_OverwritesOnDuplicateName(t *testing.T) {
	t.Parallel()
	r := New(nil)

	r.Register(newEchoHandler("echo"))
	second := newEchoHandler("echo")
	r.Register(second)

	h, ok := r.Get("echo")
	require.True(t, ok)
	assert.Same(t, second, h)
}

func TestRegistry_All_SortedNames(t *testing.T) {
	t.Parallel()
	r := New(nil)
	r.Register(newEchoHandler("zeta"))
	r.Register(newEchoHandler("alpha"))
	r.Register(newEchoHandler("mu"))

	assert.Equal(t, []string{"alpha", "mu", "zeta"}, r.All())
}

func TestRegistry_Describe(t *testing.T) {
	t.Parallel()
	r := New(nil)
	r.Register(newEchoHandler("echo"))

	descs := r.Describe()
	require.Len(t, descs, 1)
	assert.Equal(t, "echo", descs[0].Name)
	assert.NotNil(t, descs[0].Schema)
}

func TestRegistry_DescribeOne_NotFound(t *testing.T) {
	t.Parallel()
	r := New(nil)

	_, err := r.DescribeOne("nope")
	assert.Error(t, err)
}
