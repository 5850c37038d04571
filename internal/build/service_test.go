package build

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kiln/internal/value"
)

func TestCall_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		run    RunFunc
		status Status
		value  value.Value
		logs   string
	}{
		{
			name: "ok",
			run: func(_ context.Context, in value.Value, rc *RunContext) (value.Value, error) {
				rc.Log("got %v", value.ToGo(in))
				return in, nil
			},
			status: StatusOK,
			value:  value.Number(3),
			logs:   "got 3",
		},
		{
			name: "warned",
			run: func(_ context.Context, in value.Value, rc *RunContext) (value.Value, error) {
				rc.Log("first")
				rc.Warn("careful")
				return value.String("v"), nil
			},
			status: StatusWarned,
			value:  value.String("v"),
			logs:   "first\ncareful",
		},
		{
			name: "nil output becomes null",
			run: func(context.Context, value.Value, *RunContext) (value.Value, error) {
				return nil, nil
			},
			status: StatusOK,
			value:  value.Null{},
		},
		{
			name: "error",
			run: func(_ context.Context, _ value.Value, rc *RunContext) (value.Value, error) {
				rc.Log("trying")
				return nil, errors.New("disk full")
			},
			status: StatusFailed,
			logs:   "trying\ndisk full",
		},
		{
			name: "panic",
			run: func(context.Context, value.Value, *RunContext) (value.Value, error) {
				panic("oops")
			},
			status: StatusFailed,
			logs:   "panic: oops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner()
			res, err := r.Call(context.Background(), NewService("svc", true, tt.run), value.Number(3))
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.logs, res.Logs)
			if tt.value == nil {
				assert.Nil(t, res.Value)
			} else {
				assert.True(t, value.Equal(tt.value, res.Value), "got %#v", res.Value)
			}
		})
	}
}

func TestCall_NilService(t *testing.T) {
	_, err := NewRunner().Call(context.Background(), nil, value.Null{})
	assert.True(t, HasCode(err, ErrCodeNilService))
}

func TestRunContext_TryCallFoldsNested(t *testing.T) {
	r := NewRunner()
	ctx := context.Background()

	inner := NewService("inner", true, func(_ context.Context, in value.Value, rc *RunContext) (value.Value, error) {
		rc.Warn("inner warning")
		s, _ := value.AsString(in)
		return value.String(s + "!"), nil
	})
	outer := NewService("outer", true, func(ctx context.Context, in value.Value, rc *RunContext) (value.Value, error) {
		rc.Log("before")
		return rc.TryCall(ctx, inner, in)
	})

	res, err := r.Call(ctx, outer, value.String("hi"))
	require.NoError(t, err)
	assert.Equal(t, StatusWarned, res.Status)
	assert.Equal(t, value.String("hi!"), res.Value)
	assert.Equal(t, "before\ninner warning", res.Logs)
}

func TestRunContext_TryCallFailureFailsCaller(t *testing.T) {
	r := NewRunner()
	ctx := context.Background()

	inner := NewService("inner", true, func(_ context.Context, _ value.Value, rc *RunContext) (value.Value, error) {
		return nil, errors.New("inner broke")
	})
	outer := NewService("outer", true, func(ctx context.Context, in value.Value, rc *RunContext) (value.Value, error) {
		return rc.TryCall(ctx, inner, in)
	})

	res, err := r.Call(ctx, outer, value.Null{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "inner broke\ncall to service \"inner\" failed", res.Logs)
}

func TestRunContext_CallDoesNotFold(t *testing.T) {
	r := NewRunner()
	ctx := context.Background()

	inner := NewService("inner", true, func(_ context.Context, _ value.Value, rc *RunContext) (value.Value, error) {
		rc.Warn("ignored")
		return value.Null{}, nil
	})
	outer := NewService("outer", true, func(ctx context.Context, in value.Value, rc *RunContext) (value.Value, error) {
		res, err := rc.Call(ctx, inner, in)
		if err != nil {
			return nil, err
		}
		return value.String(res.Status), nil
	})

	res, err := r.Call(ctx, outer, value.Null{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, value.String("warned"), res.Value)
	assert.Empty(t, res.Logs)
}

func TestIdentityService(t *testing.T) {
	svc := IdentityService()
	assert.Same(t, svc, IdentityService())
	assert.True(t, svc.Pure())
	assert.Equal(t, "Identity", svc.ID())

	res, err := NewRunner().Call(context.Background(), svc, value.Array{value.Bool(true)})
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Array{value.Bool(true)}, res.Value))
}

func TestResult_OK(t *testing.T) {
	assert.True(t, (&Result{Status: StatusOK}).OK())
	assert.True(t, (&Result{Status: StatusWarned}).OK())
	assert.False(t, (&Result{Status: StatusFailed}).OK())
	assert.False(t, (&Result{Status: StatusSkipped}).OK())
	assert.False(t, (*Result)(nil).OK())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "<nil>", Describe(nil))
	assert.Equal(t, "ok", Describe(&Result{Status: StatusOK}))
	assert.Equal(t, "failed: a; b", Describe(&Result{Status: StatusFailed, Logs: "a\nb"}))
}
