package main

import (
	"bytes"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter(t *testing.T) {
	filter, err := buildFilter([]string{"11", " 12 "}, "7")
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{11, 12}, filter.InvoiceIDs)
	require.NotNil(t, filter.TenantID)
	assert.Equal(t, snowflake.ID(7), *filter.TenantID)

	filter, err = buildFilter(nil, "")
	require.NoError(t, err)
	assert.Empty(t, filter.InvoiceIDs)
	assert.Nil(t, filter.TenantID)
}

func TestBuildFilterRejectsBadIDs(t *testing.T) {
	_, err := buildFilter([]string{"abc"}, "")
	assert.ErrorContains(t, err, "--invoice-id")

	_, err = buildFilter(nil, "0")
	assert.ErrorContains(t, err, "--tenant-id")
}

func TestMaterializeRequiresFlags(t *testing.T) {
	cmd := materializeCmd()
	cmd.SetArgs([]string{"--tenant-id", "1"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "enrollment-id")
}

func TestMaterializeRejectsBadAnchor(t *testing.T) {
	cmd := materializeCmd()
	cmd.SetArgs([]string{"--tenant-id", "1", "--enrollment-id", "2", "--anchor-date", "03/02/2025"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "invalid anchor date")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"marked": 2}))
	assert.JSONEq(t, `{"marked":2}`, buf.String())
}
