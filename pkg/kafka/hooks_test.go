package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingHook(name string, calls *[]string) HookFuncs {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			*calls = append(*calls, "before:"+name)
			return ctx, km, append(data, name...), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) {
			*calls = append(*calls, "after:"+name)
		},
		Err: func(context.Context, string, kafka.Message, []byte, error) {
			*calls = append(*calls, "err:"+name)
		},
	}
}

func TestHookChain_Order(t *testing.T) {
	var calls []string
	chain := NewHookChain(recordingHook("a", &calls), nil, recordingHook("b", &calls))

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	assert.Equal(t, ">ab", string(data))

	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, calls)
}

func TestHookChain_PanicBecomesHookError(t *testing.T) {
	var calls []string
	panicky := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
	}
	chain := NewHookChain(recordingHook("a", &calls), panicky)

	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_PANIC", herr.Code)
	assert.Contains(t, calls, "err:a")
}

func TestTraceID(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "other", Value: []byte("x")}, {Key: "trace_id", Value: []byte("abc")}}}
	assert.Equal(t, "abc", ExtractTraceID(km))
	assert.Empty(t, ExtractTraceID(kafka.Message{}))

	ctx := WithTraceID(context.Background(), "")
	assert.Nil(t, ctx.Value(CtxTraceID))
	ctx = WithTraceID(ctx, "abc")
	assert.Equal(t, "abc", ctx.Value(CtxTraceID))
}
