package build

import (
	"context"
	"fmt"

	"github.com/roach88/kiln/internal/value"
)

// Rule creates targets that share a build (and optionally reset) service.
type Rule[C any] func(id string, config C) *Target

// DefineRule returns a Rule whose targets build with svc over input.
func DefineRule[C any](svc *Service, input func(ctx context.Context, config C, in *InputContext) (value.Value, error)) Rule[C] {
	return func(id string, config C) *Target {
		return NewTarget(TargetDefinition{
			ID:     id,
			Config: config,
			Build:  BuildSpec{Service: svc, Input: typedBuildInput(input)},
		})
	}
}

// DefineRuleWithReset is DefineRule plus a reset service run on every reset.
func DefineRuleWithReset[C any](
	svc *Service,
	input func(ctx context.Context, config C, in *InputContext) (value.Value, error),
	resetSvc *Service,
	resetInput func(ctx context.Context, config C) (value.Value, error),
) Rule[C] {
	return func(id string, config C) *Target {
		return NewTarget(TargetDefinition{
			ID:     id,
			Config: config,
			Build:  BuildSpec{Service: svc, Input: typedBuildInput(input)},
			Reset: &ResetSpec{
				Service: resetSvc,
				Input: func(ctx context.Context, config any) (value.Value, error) {
					c, err := configAs[C](config)
					if err != nil {
						return nil, err
					}
					return resetInput(ctx, c)
				},
			},
		})
	}
}

func typedBuildInput[C any](input func(ctx context.Context, config C, in *InputContext) (value.Value, error)) BuildInputFunc {
	return func(ctx context.Context, config any, in *InputContext) (value.Value, error) {
		c, err := configAs[C](config)
		if err != nil {
			return nil, err
		}
		return input(ctx, c, in)
	}
}

func configAs[C any](config any) (C, error) {
	if config == nil {
		var zero C
		return zero, nil
	}
	c, ok := config.(C)
	if !ok {
		var zero C
		return zero, fmt.Errorf("config has type %T, want %T", config, zero)
	}
	return c, nil
}
