package http

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type selectRequest struct {
	SysName string `query:"sysName" validate:"required"`
	Limit   int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

func TestDefaultAndValidate(t *testing.T) {
	req := &selectRequest{SysName: "alpha"}
	assert.Nil(t, DefaultAndValidate(context.Background(), req))
	assert.Equal(t, 50, req.Limit)
}

func TestDefaultAndValidateReportsFields(t *testing.T) {
	res := DefaultAndValidate(context.Background(), &selectRequest{})
	errs, ok := res.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_REQUIRED", errs[0].Code)
	assert.Equal(t, "SysName", errs[0].Field)
	assert.Equal(t, "SysName is required", errs[0].Message)
}
